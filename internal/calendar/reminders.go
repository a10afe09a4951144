package calendar

import (
	"fmt"
	"time"

	"slotcal/internal/models"
)

// AddReminder appends a reminder to an event. An empty kind means email.
func (c *Calendar) AddReminder(id string, at time.Time, kind models.ReminderKind) error {
	e, ok := c.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	k, err := models.ParseReminderKind(string(kind))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}
	if at.IsZero() {
		return fmt.Errorf("%w: missing trigger time", ErrInvalidReminder)
	}
	e.AddReminder(models.Reminder{At: at, Kind: k})
	return nil
}

// DeleteReminder removes the reminder at index from an event.
func (c *Calendar) DeleteReminder(id string, index int) error {
	e, ok := c.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if !e.DeleteReminder(index) {
		return fmt.Errorf("%w: index %d of %d on event %s", ErrReminderNotFound, index, len(e.Reminders), id)
	}
	return nil
}

// ListReminders returns a copy of an event's reminders in insertion order.
func (c *Calendar) ListReminders(id string) ([]models.Reminder, error) {
	e, ok := c.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return append([]models.Reminder(nil), e.Reminders...), nil
}
