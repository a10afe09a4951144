// Package slots discretizes a day into fixed 15 minute slots and arbitrates
// which event occupies each of them.
package slots

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"slotcal/internal/models"
)

const (
	// Granularity is the length of a slot in minutes.
	Granularity = 15
	// PerDay is the number of slots in a day.
	PerDay = 24 * 60 / Granularity
)

var (
	ErrConflict     = errors.New("slot not available")
	ErrNotHeld      = errors.New("no slot held by event")
	ErrInvalidRange = errors.New("invalid slot range")
)

// boundaries holds the start of every slot, indexed by slot number.
var boundaries = func() [PerDay]models.Clock {
	var b [PerDay]models.Clock
	for i := range b {
		b[i] = models.Clock(i * Granularity)
	}
	return b
}()

// Boundaries returns the start of every slot of a day, in order.
func Boundaries() []models.Clock {
	out := make([]models.Clock, PerDay)
	copy(out, boundaries[:])
	return out
}

// ConflictError reports the first slot of a requested range that is held by
// another event.
type ConflictError struct {
	Slot   models.Clock
	Holder string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s is held by event %s", ErrConflict, e.Slot, e.Holder)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Span converts the half-open range [start, end) into slot indexes [from, to).
// Both ends must fall on a slot boundary and start must come before end.
func Span(start, end models.Clock) (from, to int, err error) {
	if start < 0 || end > models.EndOfDay || start >= end {
		return 0, 0, fmt.Errorf("%w: %s-%s", ErrInvalidRange, start, end)
	}
	if start%Granularity != 0 || end%Granularity != 0 {
		return 0, 0, fmt.Errorf("%w: %s-%s is not aligned to %d minutes", ErrInvalidRange, start, end, Granularity)
	}
	return int(start) / Granularity, int(end) / Granularity, nil
}

// Grid is the occupancy of every slot of a single date. The zero value is
// not usable; create grids with NewGrid.
type Grid struct {
	date  models.Date
	slots [PerDay]string
}

// NewGrid creates an empty grid for date.
func NewGrid(date models.Date) *Grid {
	return &Grid{date: date}
}

// Owner returns the id of the event holding the slot that starts at c.
func (g *Grid) Owner(c models.Clock) (string, bool) {
	if c < 0 || c >= models.EndOfDay || c%Granularity != 0 {
		return "", false
	}
	id := g.slots[int(c)/Granularity]
	return id, id != ""
}

// Held returns the slots held by id, in order.
func (g *Grid) Held(id string) []models.Clock {
	var out []models.Clock
	for i, holder := range g.slots {
		if holder == id {
			out = append(out, boundaries[i])
		}
	}
	return out
}

// Reserve marks every slot in [start, end) as held by id. The whole range is
// checked first; on conflict nothing is written.
func (g *Grid) Reserve(id string, start, end models.Clock) error {
	from, to, err := Span(start, end)
	if err != nil {
		return err
	}
	if err := g.check(id, from, to); err != nil {
		return err
	}
	for i := from; i < to; i++ {
		g.slots[i] = id
	}
	return nil
}

// Release frees every slot held by id.
func (g *Grid) Release(id string) error {
	if g.clear(id) == 0 {
		return fmt.Errorf("%w: %s on %s", ErrNotHeld, id, g.date)
	}
	return nil
}

// Reassign moves id to [start, end). When the new range conflicts with
// another event the previous reservation is put back before returning.
func (g *Grid) Reassign(id string, start, end models.Clock) error {
	from, to, err := Span(start, end)
	if err != nil {
		return err
	}
	previous := g.slots
	g.clear(id)
	if err := g.check(id, from, to); err != nil {
		g.slots = previous
		return err
	}
	for i := from; i < to; i++ {
		g.slots[i] = id
	}
	return nil
}

// FreeSlots yields the start of every unoccupied slot in order.
func (g *Grid) FreeSlots() iter.Seq[models.Clock] {
	return func(yield func(models.Clock) bool) {
		for i, holder := range g.slots {
			if holder != "" {
				continue
			}
			if !yield(boundaries[i]) {
				return
			}
		}
	}
}

func (g *Grid) check(id string, from, to int) error {
	for i := from; i < to; i++ {
		if holder := g.slots[i]; holder != "" && holder != id {
			return &ConflictError{Slot: boundaries[i], Holder: holder}
		}
	}
	return nil
}

func (g *Grid) clear(id string) int {
	if id == "" {
		return 0
	}
	n := 0
	for i, holder := range g.slots {
		if holder == id {
			g.slots[i] = ""
			n++
		}
	}
	return n
}

// Cover returns the date and the smallest slot aligned range of that date
// that contains [start, end). The interval must begin and end on the same
// day; ending exactly at the following midnight is allowed.
func Cover(start, end time.Time) (models.Date, models.Clock, models.Clock, error) {
	if !end.After(start) {
		return models.Date{}, 0, 0, fmt.Errorf("%w: %s is not after %s", ErrInvalidRange, end, start)
	}
	date := models.DateOf(start)
	from := models.ClockOf(start)
	from -= from % Granularity

	var to models.Clock
	switch {
	case models.DateOf(end) == date:
		to = models.ClockOf(end)
		if end.Second() > 0 || end.Nanosecond() > 0 {
			to++
		}
	case models.DateOf(end) == date.AddDays(1) && models.ClockOf(end) == 0 && end.Second() == 0 && end.Nanosecond() == 0:
		to = models.EndOfDay
	default:
		return models.Date{}, 0, 0, fmt.Errorf("%w: %s to %s spans more than one day", ErrInvalidRange, start.Format(time.DateTime), end.Format(time.DateTime))
	}
	if rem := to % Granularity; rem != 0 {
		to += Granularity - rem
	}
	return date, from, to, nil
}
