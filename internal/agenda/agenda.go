// Package agenda reads planned events from a YAML file.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"slotcal/internal/models"

	"gopkg.in/yaml.v3"
)

// ReminderEntry is a reminder as written in the agenda file.
type ReminderEntry struct {
	// At is the trigger time, either RFC 3339 or "2006-01-02T15:04" local time.
	At   string `yaml:"at"`
	Kind string `yaml:"kind"`
}

// Entry is one planned event.
type Entry struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	Date        string          `yaml:"date"`
	Start       string          `yaml:"start"`
	End         string          `yaml:"end"`
	Reminders   []ReminderEntry `yaml:"reminders"`
}

// File is the top-level agenda document.
type File struct {
	Events []Entry `yaml:"events"`
}

// Parse decodes an agenda document and converts every entry into a
// proposal. Entries that fail to parse are reported in Skipped.
func Parse(r io.Reader, source string) (models.Batch, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return models.Batch{}, fmt.Errorf("failed to parse agenda: %w", err)
	}

	var batch models.Batch
	for i, e := range f.Events {
		p, err := e.proposal(source)
		if err != nil {
			name := e.ID
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			batch.Skipped = append(batch.Skipped, fmt.Sprintf("entry %s: %v", name, err))
			continue
		}
		batch.Proposals = append(batch.Proposals, p)
	}
	return batch, nil
}

func (e Entry) proposal(source string) (models.Proposal, error) {
	date, err := models.ParseDate(e.Date)
	if err != nil {
		return models.Proposal{}, err
	}
	start, err := models.ParseClock(e.Start)
	if err != nil {
		return models.Proposal{}, fmt.Errorf("start: %w", err)
	}
	end, err := models.ParseClock(e.End)
	if err != nil {
		return models.Proposal{}, fmt.Errorf("end: %w", err)
	}

	p := models.Proposal{
		SourceID: e.ID,
		Source:   source,
		Details: models.EventDetails{
			Title:       e.Title,
			Description: e.Description,
			Date:        date,
			Start:       start,
			End:         end,
		},
	}
	for _, r := range e.Reminders {
		at, err := parseTrigger(r.At)
		if err != nil {
			return models.Proposal{}, err
		}
		kind, err := models.ParseReminderKind(r.Kind)
		if err != nil {
			return models.Proposal{}, err
		}
		p.Reminders = append(p.Reminders, models.Reminder{At: at, Kind: kind})
	}
	return p, nil
}

func parseTrigger(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reminder time %q", s)
	}
	return t, nil
}

// FileSource offers the entries of an agenda file for booking.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return "agenda:" + s.Path }

func (s *FileSource) FetchProposals(ctx context.Context) (models.Batch, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to open %s: %w", s.Path, err)
	}
	defer f.Close()
	return Parse(f, s.Name())
}
