package calendar

import (
	"errors"

	"slotcal/internal/slots"
)

var (
	ErrPastDate         = errors.New("date is before today")
	ErrEventNotFound    = errors.New("event not found")
	ErrReminderNotFound = errors.New("reminder not found")
	ErrInvalidReminder  = errors.New("invalid reminder")

	// ErrSlotConflict matches any *slots.ConflictError.
	ErrSlotConflict = slots.ErrConflict
	ErrInvalidRange = slots.ErrInvalidRange
)
