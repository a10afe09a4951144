// Package ics converts between booked events and iCalendar data.
//
// Event times are written as floating local times: the calendar has no
// notion of time zones. Reminder triggers are absolute UTC instants.
package ics

import (
	"fmt"
	"io"
	"time"

	"slotcal/internal/models"

	"github.com/emersion/go-ical"
)

const (
	DefaultProductID = "-//slotcal//EN"

	floatingLayout = "20060102T150405"
)

// Options controls how events are rendered.
type Options struct {
	ProductID    string // PRODID of the calendar, DefaultProductID if empty
	CalendarName string // Optional X-WR-CALNAME
	AlarmEmail   string // Recipient of email reminders, if any
}

// NewCalendar builds a VCALENDAR holding one VEVENT per event.
func NewCalendar(opts Options, events ...models.Event) *ical.Calendar {
	prodID := opts.ProductID
	if prodID == "" {
		prodID = DefaultProductID
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText("CALSCALE", "GREGORIAN")
	if opts.CalendarName != "" {
		cal.Props.SetText("X-WR-CALNAME", opts.CalendarName)
	}

	stamp := time.Now().UTC()
	for _, e := range events {
		cal.Children = append(cal.Children, toVEvent(e, opts, stamp))
	}
	return cal
}

// Encode writes events to w as an iCalendar stream.
func Encode(w io.Writer, opts Options, events []models.Event) error {
	if err := ical.NewEncoder(w).Encode(NewCalendar(opts, events...)); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

// toVEvent converts a booked event to a VEVENT component.
func toVEvent(e models.Event, opts Options, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, e.ID)
	ve.Props.SetText(ical.PropSummary, e.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ve.Props.Set(floating(ical.PropDateTimeStart, e.StartTime(time.Local)))
	ve.Props.Set(floating(ical.PropDateTimeEnd, e.EndTime(time.Local)))
	if e.Description != "" {
		ve.Props.SetText(ical.PropDescription, e.Description)
	}

	for _, r := range e.Reminders {
		ve.Children = append(ve.Children, toVAlarm(e, r, opts))
	}
	return ve
}

func toVAlarm(e models.Event, r models.Reminder, opts Options) *ical.Component {
	alarm := ical.NewComponent(ical.CompAlarm)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.SetDateTime(r.At.UTC())
	alarm.Props.Set(trigger)

	description := e.Title
	if description == "" {
		description = "Reminder"
	}
	alarm.Props.SetText(ical.PropDescription, description)

	switch r.Kind {
	case models.ReminderEmail:
		alarm.Props.SetText(ical.PropAction, "EMAIL")
		alarm.Props.SetText(ical.PropSummary, fmt.Sprintf("Reminder: %s", e.Title))
		if opts.AlarmEmail != "" {
			p := ical.NewProp(ical.PropAttendee)
			p.SetText(fmt.Sprintf("mailto:%s", opts.AlarmEmail))
			alarm.Props.Add(p)
		}
	default:
		alarm.Props.SetText(ical.PropAction, "DISPLAY")
	}
	return alarm
}

// floating returns a DATE-TIME property without a time zone.
func floating(name string, t time.Time) *ical.Prop {
	p := ical.NewProp(name)
	p.SetValueType(ical.ValueDateTime)
	p.Value = t.Format(floatingLayout)
	return p
}
