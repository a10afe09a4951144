// Package calendar keeps events and the per-day slot grids that back them in
// agreement: every event owns exactly the slots of its range on its date.
//
// A Calendar is not safe for concurrent use. Callers sharing one must
// serialize the mutating methods.
package calendar

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"slotcal/internal/models"
	"slotcal/internal/slots"

	"github.com/google/uuid"
)

// IDGenerator produces globally unique event identifiers.
type IDGenerator interface {
	NewID() string
}

// IDFunc adapts a function to IDGenerator.
type IDFunc func() string

func (f IDFunc) NewID() string { return f() }

// UUIDGenerator issues random UUIDs. It is the default generator.
var UUIDGenerator IDGenerator = IDFunc(uuid.NewString)

// Option configures a Calendar.
type Option func(*Calendar)

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Calendar) { c.ids = g }
}

// WithNow replaces time.Now as the source of today's date.
func WithNow(now func() time.Time) Option {
	return func(c *Calendar) { c.now = now }
}

// DayEvents groups the events of one date.
type DayEvents struct {
	Date   models.Date
	Events []models.Event
}

// Calendar owns the event store and the slot grids.
type Calendar struct {
	logger *slog.Logger
	ids    IDGenerator
	now    func() time.Time

	days   map[models.Date]*slots.Grid
	events map[string]*models.Event
	order  []string // Event ids in insertion order
}

// New creates an empty calendar.
func New(logger *slog.Logger, opts ...Option) *Calendar {
	c := &Calendar{
		logger: logger,
		ids:    UUIDGenerator,
		now:    time.Now,
		days:   make(map[models.Date]*slots.Grid),
		events: make(map[string]*models.Event),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddEvent books a new event and returns its id. Either the event is stored
// and its slots reserved, or nothing changes.
func (c *Calendar) AddEvent(d models.EventDetails) (string, error) {
	if today := models.DateOf(c.now()); d.Date.Before(today) {
		return "", fmt.Errorf("%w: %s < %s", ErrPastDate, d.Date, today)
	}
	if _, _, err := slots.Span(d.Start, d.End); err != nil {
		return "", err
	}

	grid := c.day(d.Date)
	id := c.ids.NewID()
	if id == "" {
		return "", fmt.Errorf("id generator returned an empty id")
	}
	if _, exists := c.events[id]; exists {
		return "", fmt.Errorf("id generator returned duplicate id %s", id)
	}
	if err := grid.Reserve(id, d.Start, d.End); err != nil {
		return "", err
	}

	c.events[id] = &models.Event{ID: id, EventDetails: d}
	c.order = append(c.order, id)
	c.logger.Debug("Event added", "id", id, "date", d.Date, "start", d.Start, "end", d.End)
	return id, nil
}

// UpdateEvent replaces every attribute of an event. Reminders are kept.
//
// When the date is unchanged only the slot range moves. When the date
// changes the event is booked on the new date first and released from the
// old one afterwards, and it moves to the end of the insertion order. On
// any error the event and its slots are left as they were.
func (c *Calendar) UpdateEvent(id string, d models.EventDetails) error {
	e, ok := c.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if _, _, err := slots.Span(d.Start, d.End); err != nil {
		return err
	}

	if e.Date == d.Date {
		if err := c.days[e.Date].Reassign(id, d.Start, d.End); err != nil {
			return err
		}
		e.EventDetails = d
		c.logger.Debug("Event updated", "id", id, "date", d.Date, "start", d.Start, "end", d.End)
		return nil
	}

	if err := c.day(d.Date).Reserve(id, d.Start, d.End); err != nil {
		return err
	}
	if err := c.days[e.Date].Release(id); err != nil {
		return fmt.Errorf("release %s from %s: %w", id, e.Date, err)
	}
	from := e.Date
	e.EventDetails = d
	c.order = append(slices.DeleteFunc(c.order, func(s string) bool { return s == id }), id)
	c.logger.Debug("Event moved", "id", id, "from", from, "to", d.Date, "start", d.Start, "end", d.End)
	return nil
}

// DeleteEvent removes an event and frees its slots.
func (c *Calendar) DeleteEvent(id string) error {
	e, ok := c.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err := c.days[e.Date].Release(id); err != nil {
		return fmt.Errorf("release %s from %s: %w", id, e.Date, err)
	}
	delete(c.events, id)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
	c.logger.Debug("Event deleted", "id", id, "date", e.Date)
	return nil
}

// Event returns a copy of the event with the given id.
func (c *Calendar) Event(id string) (models.Event, error) {
	e, ok := c.events[id]
	if !ok {
		return models.Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return e.Clone(), nil
}

// Events returns copies of all events in insertion order.
func (c *Calendar) Events() []models.Event {
	out := make([]models.Event, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.events[id].Clone())
	}
	return out
}

// FindAvailableSlots returns the start of every free slot on date. A date
// that was never booked is entirely free.
func (c *Calendar) FindAvailableSlots(date models.Date) []models.Clock {
	grid, ok := c.days[date]
	if !ok {
		return slots.Boundaries()
	}
	return slices.Collect(grid.FreeSlots())
}

// FindEvents returns the events dated within [from, to], grouped by date.
// Groups appear in the order their first event was inserted, and events
// keep insertion order inside a group. Nothing is sorted by time.
func (c *Calendar) FindEvents(from, to models.Date) []DayEvents {
	var out []DayEvents
	index := make(map[models.Date]int)
	for _, id := range c.order {
		e := c.events[id]
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		i, ok := index[e.Date]
		if !ok {
			i = len(out)
			index[e.Date] = i
			out = append(out, DayEvents{Date: e.Date})
		}
		out[i].Events = append(out[i].Events, e.Clone())
	}
	return out
}

// day returns the grid for date, creating it on first use.
func (c *Calendar) day(date models.Date) *slots.Grid {
	grid, ok := c.days[date]
	if !ok {
		grid = slots.NewGrid(date)
		c.days[date] = grid
	}
	return grid
}
