package models

import (
	"fmt"
	"time"
)

// ReminderKind tells how a reminder is delivered.
type ReminderKind string

const (
	ReminderEmail  ReminderKind = "email"
	ReminderSystem ReminderKind = "system"
)

// ParseReminderKind maps a user supplied kind onto a ReminderKind.
// An empty string selects email.
func ParseReminderKind(s string) (ReminderKind, error) {
	switch ReminderKind(s) {
	case "":
		return ReminderEmail, nil
	case ReminderEmail, ReminderSystem:
		return ReminderKind(s), nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", s)
}

// Reminder is a timestamped trigger attached to an event.
type Reminder struct {
	At   time.Time    // When the reminder fires
	Kind ReminderKind // Delivery channel
}

func (r Reminder) String() string {
	return fmt.Sprintf("%s reminder at %s", r.Kind, r.At.Format("2006-01-02 15:04"))
}

// EventDetails holds the user editable attributes of an event.
type EventDetails struct {
	Title       string
	Description string
	Date        Date
	Start       Clock // Inclusive
	End         Clock // Exclusive
}

// Event is a booked calendar entry.
type Event struct {
	ID string // Opaque identifier assigned by the calendar
	EventDetails
	Reminders []Reminder // Insertion ordered
}

// Clone returns a copy of e that shares no memory with it.
func (e *Event) Clone() Event {
	c := *e
	if e.Reminders != nil {
		c.Reminders = append([]Reminder(nil), e.Reminders...)
	}
	return c
}

// AddReminder appends r to the event's reminders.
func (e *Event) AddReminder(r Reminder) {
	e.Reminders = append(e.Reminders, r)
}

// DeleteReminder removes the reminder at index, shifting later ones down.
// It reports false when index is out of range; negative indexes never match.
func (e *Event) DeleteReminder(index int) bool {
	if index < 0 || index >= len(e.Reminders) {
		return false
	}
	e.Reminders = append(e.Reminders[:index], e.Reminders[index+1:]...)
	return true
}

// StartTime returns the start of the event in loc.
func (e *Event) StartTime(loc *time.Location) time.Time {
	return e.Start.On(e.Date, loc)
}

// EndTime returns the end of the event in loc.
func (e *Event) EndTime(loc *time.Location) time.Time {
	return e.End.On(e.Date, loc)
}

func (e *Event) String() string {
	return fmt.Sprintf("%s %s-%s %s", e.Date, e.Start, e.End, e.Title)
}

// Proposal is an event offered by a source for booking.
type Proposal struct {
	SourceID  string // Identifier of the event in its source
	Source    string // Name of the source (e.g. "agenda", "google-primary")
	Details   EventDetails
	Reminders []Reminder
}

// Batch is what a source offers in one fetch.
type Batch struct {
	Proposals []Proposal
	// Skipped describes every entry the source could not turn into a
	// proposal, with the reason.
	Skipped []string
}
