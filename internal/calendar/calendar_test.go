package calendar

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"slotcal/internal/models"
	"slotcal/internal/slots"
)

var (
	today   = models.Date{Year: 2030, Month: 1, Day: 1}
	newYear = models.Date{Year: 2030, Month: 1, Day: 1}
)

func newTestCalendar(t *testing.T, ids ...string) *Calendar {
	t.Helper()
	next := 0
	gen := IDFunc(func() string {
		if next < len(ids) {
			next++
			return ids[next-1]
		}
		next++
		return fmt.Sprintf("event-%d", next)
	})
	now := func() time.Time { return time.Date(2030, 1, 1, 8, 0, 0, 0, time.Local) }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, WithIDGenerator(gen), WithNow(now))
}

func details(t *testing.T, title string, date models.Date, start, end string) models.EventDetails {
	t.Helper()
	s, err := models.ParseClock(start)
	if err != nil {
		t.Fatal(err)
	}
	e, err := models.ParseClock(end)
	if err != nil {
		t.Fatal(err)
	}
	return models.EventDetails{Title: title, Description: title + " description", Date: date, Start: s, End: e}
}

func mustAdd(t *testing.T, c *Calendar, d models.EventDetails) string {
	t.Helper()
	id, err := c.AddEvent(d)
	if err != nil {
		t.Fatalf("AddEvent(%s) failed: %v", d.Title, err)
	}
	return id
}

// held returns the slots of date owned by id.
func held(c *Calendar, date models.Date, id string) []models.Clock {
	grid, ok := c.days[date]
	if !ok {
		return nil
	}
	return grid.Held(id)
}

func clocks(t *testing.T, values ...string) []models.Clock {
	t.Helper()
	out := make([]models.Clock, len(values))
	for i, v := range values {
		c, err := models.ParseClock(v)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = c
	}
	return out
}

func TestAddEventReservesSlots(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  []string
	}{
		{name: "one slot", start: "09:00", end: "09:15", want: []string{"09:00"}},
		{name: "one hour", start: "09:00", end: "10:00", want: []string{"09:00", "09:15", "09:30", "09:45"}},
		{name: "end of day", start: "23:30", end: "24:00", want: []string{"23:30", "23:45"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCalendar(t)
			id := mustAdd(t, c, details(t, "A", newYear, tt.start, tt.end))

			want := clocks(t, tt.want...)
			if got := held(c, newYear, id); !slices.Equal(got, want) {
				t.Errorf("Expected slots %v, got %v", want, got)
			}

			free := c.FindAvailableSlots(newYear)
			if len(free) != slots.PerDay-len(want) {
				t.Errorf("Expected %d free slots, got %d", slots.PerDay-len(want), len(free))
			}
			for _, w := range want {
				if slices.Contains(free, w) {
					t.Errorf("Slot %s should not be free", w)
				}
			}
		})
	}
}

func TestAddEventPastDate(t *testing.T) {
	c := newTestCalendar(t)
	yesterday := today.AddDays(-1)

	_, err := c.AddEvent(details(t, "A", yesterday, "09:00", "10:00"))
	if !errors.Is(err, ErrPastDate) {
		t.Fatalf("Expected ErrPastDate, got %v", err)
	}
	if len(c.Events()) != 0 {
		t.Error("Store should be empty after a rejected event")
	}
	if _, ok := c.days[yesterday]; ok {
		t.Error("No grid should be created for a rejected past date")
	}

	if _, err := c.AddEvent(details(t, "B", today, "09:00", "10:00")); err != nil {
		t.Errorf("Today should be accepted, got %v", err)
	}
}

func TestAddEventInvalidRange(t *testing.T) {
	c := newTestCalendar(t)
	for _, r := range [][2]string{{"10:00", "10:00"}, {"10:00", "09:00"}, {"09:05", "10:00"}} {
		_, err := c.AddEvent(details(t, "A", newYear, r[0], r[1]))
		if !errors.Is(err, ErrInvalidRange) {
			t.Errorf("%s-%s: expected ErrInvalidRange, got %v", r[0], r[1], err)
		}
	}
	if len(c.Events()) != 0 {
		t.Error("Store should be empty")
	}
}

func TestAddEventConflict(t *testing.T) {
	c := newTestCalendar(t, "A", "B", "C")

	a := mustAdd(t, c, details(t, "A", newYear, "09:00", "10:00"))
	_, err := c.AddEvent(details(t, "B", newYear, "09:30", "10:30"))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("Expected ErrSlotConflict, got %v", err)
	}
	var conflict *slots.ConflictError
	if !errors.As(err, &conflict) || conflict.Holder != a {
		t.Errorf("Expected conflict with %s, got %v", a, err)
	}
	if _, err := c.Event("B"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Rejected event must not be stored, got %v", err)
	}
	if got := held(c, newYear, "B"); len(got) != 0 {
		t.Errorf("Rejected event must not hold slots, got %v", got)
	}

	want := clocks(t, "09:00", "09:15", "09:30", "09:45")
	if got := held(c, newYear, a); !slices.Equal(got, want) {
		t.Errorf("First reservation changed: %v", got)
	}

	cID := mustAdd(t, c, details(t, "C", newYear, "10:00", "10:30"))
	if got := held(c, newYear, cID); !slices.Equal(got, clocks(t, "10:00", "10:15")) {
		t.Errorf("Unexpected slots for C: %v", got)
	}

	groups := c.FindEvents(newYear, newYear)
	if len(groups) != 1 || groups[0].Date != newYear {
		t.Fatalf("Expected one group for %s, got %+v", newYear, groups)
	}
	var titles []string
	for _, e := range groups[0].Events {
		titles = append(titles, e.Title)
	}
	if !slices.Equal(titles, []string{"A", "C"}) {
		t.Errorf("Expected [A C], got %v", titles)
	}
}

func TestDeleteEventFreesDay(t *testing.T) {
	c := newTestCalendar(t)
	id := mustAdd(t, c, details(t, "A", newYear, "09:00", "12:00"))

	if err := c.DeleteEvent(id); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if got := c.FindAvailableSlots(newYear); !slices.Equal(got, slots.Boundaries()) {
		t.Errorf("Expected the full day to be free, got %d slots", len(got))
	}
	if err := c.DeleteEvent(id); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Expected ErrEventNotFound, got %v", err)
	}
}

func TestFindAvailableSlotsUntouchedDate(t *testing.T) {
	c := newTestCalendar(t)
	got := c.FindAvailableSlots(newYear.AddDays(30))
	if len(got) != 96 || got[0] != 0 || got[95].String() != "23:45" {
		t.Errorf("Untouched date should have 96 free slots, got %v", got)
	}
	if len(c.days) != 0 {
		t.Error("Querying must not materialize a grid")
	}
}

func TestUpdateEventSameSlots(t *testing.T) {
	c := newTestCalendar(t)
	id := mustAdd(t, c, details(t, "A", newYear, "09:00", "10:00"))
	before := c.FindAvailableSlots(newYear)

	d := details(t, "Renamed", newYear, "09:00", "10:00")
	d.Description = "new text"
	for i := 0; i < 3; i++ {
		if err := c.UpdateEvent(id, d); err != nil {
			t.Fatalf("UpdateEvent #%d failed: %v", i, err)
		}
		if got := c.FindAvailableSlots(newYear); !slices.Equal(got, before) {
			t.Fatalf("Slot occupancy changed after update #%d", i)
		}
	}

	e, err := c.Event(id)
	if err != nil {
		t.Fatal(err)
	}
	if e.Title != "Renamed" || e.Description != "new text" {
		t.Errorf("Attributes not replaced: %+v", e)
	}
}

func TestUpdateEventMovesRange(t *testing.T) {
	c := newTestCalendar(t, "A", "B")
	a := mustAdd(t, c, details(t, "A", newYear, "09:00", "10:00"))
	b := mustAdd(t, c, details(t, "B", newYear, "11:00", "12:00"))

	if err := c.UpdateEvent(a, details(t, "A", newYear, "09:30", "10:30")); err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}
	if got := held(c, newYear, a); !slices.Equal(got, clocks(t, "09:30", "09:45", "10:00", "10:15")) {
		t.Errorf("Unexpected slots after move: %v", got)
	}

	err := c.UpdateEvent(a, details(t, "A moved", newYear, "10:30", "11:30"))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("Expected ErrSlotConflict, got %v", err)
	}
	if got := held(c, newYear, a); !slices.Equal(got, clocks(t, "09:30", "09:45", "10:00", "10:15")) {
		t.Errorf("Failed update should keep the previous range, got %v", got)
	}
	if e, _ := c.Event(a); e.Title != "A" {
		t.Errorf("Failed update should keep attributes, got %q", e.Title)
	}
	if got := held(c, newYear, b); len(got) != 4 {
		t.Errorf("Other event changed: %v", got)
	}
}

func TestUpdateEventChangesDate(t *testing.T) {
	c := newTestCalendar(t, "A", "B")
	next := newYear.AddDays(1)
	a := mustAdd(t, c, details(t, "A", newYear, "09:00", "10:00"))
	mustAdd(t, c, details(t, "B", newYear, "11:00", "12:00"))
	if err := c.AddReminder(a, time.Date(2030, 1, 1, 8, 30, 0, 0, time.Local), models.ReminderSystem); err != nil {
		t.Fatal(err)
	}

	if err := c.UpdateEvent(a, details(t, "A", next, "14:00", "15:00")); err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}

	if got := held(c, newYear, a); len(got) != 0 {
		t.Errorf("Old date still holds %v", got)
	}
	if got := held(c, next, a); !slices.Equal(got, clocks(t, "14:00", "14:15", "14:30", "14:45")) {
		t.Errorf("Unexpected slots on new date: %v", got)
	}
	if r, _ := c.ListReminders(a); len(r) != 1 {
		t.Errorf("Reminders should survive a date change, got %v", r)
	}

	var order []string
	for _, e := range c.Events() {
		order = append(order, e.ID)
	}
	if !slices.Equal(order, []string{"B", "A"}) {
		t.Errorf("Moved event should be re-inserted last, got %v", order)
	}
}

func TestUpdateEventChangesDateConflict(t *testing.T) {
	c := newTestCalendar(t, "A", "B")
	next := newYear.AddDays(1)
	a := mustAdd(t, c, details(t, "A", newYear, "09:00", "10:00"))
	mustAdd(t, c, details(t, "B", next, "09:00", "10:00"))

	err := c.UpdateEvent(a, details(t, "A", next, "09:45", "10:15"))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("Expected ErrSlotConflict, got %v", err)
	}
	if got := held(c, newYear, a); len(got) != 4 {
		t.Errorf("Original reservation should be intact, got %v", got)
	}
	if e, _ := c.Event(a); e.Date != newYear {
		t.Errorf("Event date should be unchanged, got %s", e.Date)
	}
}

func TestUpdateEventNotFound(t *testing.T) {
	c := newTestCalendar(t)
	err := c.UpdateEvent("missing", details(t, "A", newYear, "09:00", "10:00"))
	if !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Expected ErrEventNotFound, got %v", err)
	}
}

func TestFindEventsGrouping(t *testing.T) {
	c := newTestCalendar(t, "A", "B", "C", "D")
	d1, d2, d3 := newYear, newYear.AddDays(1), newYear.AddDays(5)

	mustAdd(t, c, details(t, "A", d2, "15:00", "16:00"))
	mustAdd(t, c, details(t, "B", d1, "09:00", "10:00"))
	mustAdd(t, c, details(t, "C", d2, "08:00", "09:00"))
	mustAdd(t, c, details(t, "D", d3, "08:00", "09:00"))

	groups := c.FindEvents(d1, d2)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if groups[0].Date != d2 || groups[1].Date != d1 {
		t.Errorf("Groups should follow insertion order, got %s, %s", groups[0].Date, groups[1].Date)
	}
	if groups[0].Events[0].Title != "A" || groups[0].Events[1].Title != "C" {
		t.Errorf("Events should follow insertion order, got %v", groups[0].Events)
	}

	if got := c.FindEvents(d3.AddDays(1), d3.AddDays(10)); len(got) != 0 {
		t.Errorf("Expected no events, got %v", got)
	}
}

func TestEventReturnsCopy(t *testing.T) {
	c := newTestCalendar(t)
	id := mustAdd(t, c, details(t, "A", newYear, "09:00", "10:00"))
	if err := c.AddReminder(id, time.Date(2030, 1, 1, 8, 0, 0, 0, time.Local), ""); err != nil {
		t.Fatal(err)
	}

	e, _ := c.Event(id)
	e.Title = "changed"
	e.Reminders[0].Kind = models.ReminderSystem

	stored, _ := c.Event(id)
	if stored.Title != "A" || stored.Reminders[0].Kind != models.ReminderEmail {
		t.Errorf("Stored event was modified through a copy: %+v", stored)
	}
}

func TestAddEventRejectsBadIDs(t *testing.T) {
	c := newTestCalendar(t, "", "dup", "dup")

	if _, err := c.AddEvent(details(t, "A", newYear, "09:00", "10:00")); err == nil {
		t.Fatal("Expected an error for an empty id")
	}
	if n := len(c.Events()); n != 0 {
		t.Errorf("Expected no events after an empty id, got %d", n)
	}
	if free := c.FindAvailableSlots(newYear); len(free) != slots.PerDay {
		t.Errorf("Expected the day to stay free, got %d free slots", len(free))
	}

	mustAdd(t, c, details(t, "B", newYear, "09:00", "10:00"))
	if _, err := c.AddEvent(details(t, "C", newYear, "11:00", "12:00")); err == nil {
		t.Fatal("Expected an error for a duplicate id")
	}
	if got := held(c, newYear, "dup"); !slices.Equal(got, clocks(t, "09:00", "09:15", "09:30", "09:45")) {
		t.Errorf("Duplicate id changed the reservation: %v", got)
	}
}
