package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"slotcal/internal/models"
	"slotcal/internal/slots"

	"github.com/emersion/go-ical"
)

// Decode reads every calendar in r and converts its timed events into
// proposals. Times are interpreted in loc when they carry no zone and are
// then converted to loc. All-day events and events spanning several days are
// skipped.
func Decode(r io.Reader, source string, loc *time.Location) (models.Batch, error) {
	var result models.Batch
	if loc == nil {
		loc = time.Local
	}

	dec := ical.NewDecoder(r)
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("failed to decode calendar: %w", err)
		}

		for _, ev := range cal.Events() {
			p, err := toProposal(ev, source, loc)
			if err != nil {
				result.Skipped = append(result.Skipped, err.Error())
				continue
			}
			result.Proposals = append(result.Proposals, p)
		}
	}
	return result, nil
}

func toProposal(ev ical.Event, source string, loc *time.Location) (models.Proposal, error) {
	uid, _ := ev.Props.Text(ical.PropUID)
	summary, _ := ev.Props.Text(ical.PropSummary)
	description, _ := ev.Props.Text(ical.PropDescription)
	label := summary
	if label == "" {
		label = uid
	}

	dtstart := ev.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return models.Proposal{}, fmt.Errorf("%s: missing DTSTART", label)
	}
	if dtstart.ValueType() == ical.ValueDate {
		return models.Proposal{}, fmt.Errorf("%s: all-day events are not booked", label)
	}

	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return models.Proposal{}, fmt.Errorf("%s: %w", label, err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil {
		return models.Proposal{}, fmt.Errorf("%s: %w", label, err)
	}

	date, from, to, err := slots.Cover(start.In(loc), end.In(loc))
	if err != nil {
		return models.Proposal{}, fmt.Errorf("%s: %w", label, err)
	}

	p := models.Proposal{
		SourceID: uid,
		Source:   source,
		Details: models.EventDetails{
			Title:       summary,
			Description: description,
			Date:        date,
			Start:       from,
			End:         to,
		},
	}
	for _, child := range ev.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		if r, ok := toReminder(child, start, loc); ok {
			p.Reminders = append(p.Reminders, r)
		}
	}
	return p, nil
}

// toReminder reads a VALARM. Absolute triggers are used as is, relative
// ones are resolved against the start of the event.
func toReminder(alarm *ical.Component, start time.Time, loc *time.Location) (models.Reminder, bool) {
	trigger := alarm.Props.Get(ical.PropTrigger)
	if trigger == nil {
		return models.Reminder{}, false
	}

	var at time.Time
	if trigger.ValueType() == ical.ValueDateTime {
		t, err := trigger.DateTime(loc)
		if err != nil {
			return models.Reminder{}, false
		}
		at = t
	} else {
		d, err := trigger.Duration()
		if err != nil {
			return models.Reminder{}, false
		}
		at = start.Add(d)
	}

	kind := models.ReminderSystem
	if action, _ := alarm.Props.Text(ical.PropAction); action == "EMAIL" {
		kind = models.ReminderEmail
	}
	return models.Reminder{At: at.In(loc), Kind: kind}, true
}

// FileSource offers the events of an .ics file for booking.
type FileSource struct {
	Path     string
	Location *time.Location
}

func (s *FileSource) Name() string { return "ics:" + s.Path }

// FetchProposals reads the file. Skipped events are returned in the result.
func (s *FileSource) FetchProposals(ctx context.Context) (models.Batch, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to open %s: %w", s.Path, err)
	}
	defer f.Close()
	return Decode(f, s.Name(), s.Location)
}
