package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"slotcal/internal/calendar"
	"slotcal/internal/models"
)

// DefaultStateFile is used when no state file is configured.
const DefaultStateFile = "sync-state.json"

// SyncState keeps track of which events have been pushed.
// The key is the source and source id of the proposal, the value is the id
// of the booked event the upload was made for.
type SyncState map[string]string

// Source offers events for booking.
type Source interface {
	Name() string
	FetchProposals(ctx context.Context) (models.Batch, error)
}

// Sink receives every event that was booked.
type Sink interface {
	PushEvent(ctx context.Context, event models.Event) error
}

// Rejection is a proposal that could not be booked.
type Rejection struct {
	Proposal models.Proposal
	Err      error
}

// Report summarizes a sync cycle.
type Report struct {
	Booked   []models.Event
	Rejected []Rejection
	Skipped  []string // Source entries that never became proposals
	Pushed   int
}

// Syncer books the events of its sources into a calendar and forwards them
// to an optional sink.
type Syncer struct {
	logger    *slog.Logger
	sources   []Source
	cal       *calendar.Calendar
	sink      Sink
	state     SyncState
	stateFile string
	dryRun    bool
}

// NewSyncer creates a new Syncer. The sink may be nil, in which case events
// are only booked. State is only loaded and saved when there is a sink.
func NewSyncer(logger *slog.Logger, sources []Source, cal *calendar.Calendar, sink Sink, stateFile string, dryRun bool) (*Syncer, error) {
	if stateFile == "" {
		stateFile = DefaultStateFile
	}
	state := make(SyncState)
	if sink != nil {
		loaded, err := loadState(stateFile)
		switch {
		case err == nil:
			state = loaded
		case errors.Is(err, os.ErrNotExist):
			// If the file doesn't exist, we can start with an empty state.
			logger.Info("No sync state file found, starting fresh.", "file", stateFile)
		default:
			return nil, fmt.Errorf("failed to load sync state: %w", err)
		}
	}

	return &Syncer{
		logger:    logger,
		sources:   sources,
		cal:       cal,
		sink:      sink,
		state:     state,
		stateFile: stateFile,
		dryRun:    dryRun,
	}, nil
}

// Sync performs a full booking cycle. Sources are read in order, so earlier
// sources win conflicts.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	var report Report
	s.logger.Info("Starting sync cycle.", "sources", len(s.sources))

	for _, src := range s.sources {
		batch, err := src.FetchProposals(ctx)
		if err != nil {
			return report, fmt.Errorf("failed to fetch proposals from %s: %w", src.Name(), err)
		}
		s.logger.Info("Fetched proposals.", "source", src.Name(), "count", len(batch.Proposals), "skipped", len(batch.Skipped))
		for _, reason := range batch.Skipped {
			s.logger.Warn("Source entry skipped", "source", src.Name(), "reason", reason)
		}
		report.Skipped = append(report.Skipped, batch.Skipped...)

		for _, p := range batch.Proposals {
			event, err := s.book(p)
			if err != nil {
				// Continue with the next proposal even if one is rejected.
				s.logger.Warn("Proposal rejected", "title", p.Details.Title, "date", p.Details.Date, "error", err)
				report.Rejected = append(report.Rejected, Rejection{Proposal: p, Err: err})
				continue
			}
			report.Booked = append(report.Booked, event)

			pushed, err := s.push(ctx, p, event)
			if err != nil {
				s.logger.Error("Failed to push event", "title", event.Title, "error", err)
				continue
			}
			if pushed {
				report.Pushed++
			}
		}
	}

	if s.sink != nil && !s.dryRun {
		if err := s.saveState(); err != nil {
			s.logger.Error("Failed to save sync state", "error", err)
		}
	}

	s.logger.Info("Sync cycle finished.", "booked", len(report.Booked), "rejected", len(report.Rejected), "pushed", report.Pushed)
	return report, nil
}

// book adds a proposal and its reminders to the calendar.
func (s *Syncer) book(p models.Proposal) (models.Event, error) {
	id, err := s.cal.AddEvent(p.Details)
	if err != nil {
		return models.Event{}, err
	}
	for _, r := range p.Reminders {
		if err := s.cal.AddReminder(id, r.At, r.Kind); err != nil {
			s.logger.Warn("Reminder dropped", "title", p.Details.Title, "error", err)
		}
	}
	return s.cal.Event(id)
}

// push forwards a booked event to the sink unless it was pushed before.
func (s *Syncer) push(ctx context.Context, p models.Proposal, event models.Event) (bool, error) {
	if s.sink == nil {
		return false, nil
	}
	key := stateKey(p)
	if key != "" {
		if _, exists := s.state[key]; exists {
			s.logger.Debug("Event already pushed, skipping.", "title", event.Title, "key", key)
			return false, nil
		}
	}

	if s.dryRun {
		s.logger.Info("[DRY RUN] Would push event", "title", event.Title, "date", event.Date, "start", event.Start)
		return false, nil
	}

	if err := s.sink.PushEvent(ctx, event); err != nil {
		return false, fmt.Errorf("failed to push event: %w", err)
	}
	if key != "" {
		s.state[key] = event.ID
	}
	return true, nil
}

// stateKey identifies a proposal across runs. Proposals without a source id
// have no key and are pushed every time.
func stateKey(p models.Proposal) string {
	if p.SourceID == "" {
		return ""
	}
	return p.Source + "/" + p.SourceID
}

// loadState loads the sync state from the JSON file.
func loadState(file string) (SyncState, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state == nil {
		state = make(SyncState)
	}
	return state, nil
}

// saveState saves the current sync state to the JSON file.
func (s *Syncer) saveState() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	return os.WriteFile(s.stateFile, data, 0644)
}
