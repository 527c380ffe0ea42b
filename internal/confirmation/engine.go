// Package confirmation checks active events against Local Storm Reports and
// marks an event confirmed when a report falls inside one of its areas.
package confirmation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ReportSource lists field reports issued by an office.
type ReportSource interface {
	Reports(ctx context.Context, office string, since time.Time) ([]domain.FieldReport, error)
}

// Summary counts the outcome of one confirmation sweep.
type Summary struct {
	EventsProcessed int `json:"events_processed"`
	EventsConfirmed int `json:"events_confirmed"`
	EventsFailed    int `json:"events_failed"`
}

// Engine confirms events from field reports.
type Engine struct {
	events        store.EntityStore[domain.Event]
	reports       ReportSource
	extractor     Extractor
	processed     store.ProcessedSet
	publisher     domain.ChangePublisher
	maxConcurrent int
	clock         clockwork.Clock
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewEngine creates a confirmation engine. Sweep confirms at most
// maxConcurrent events at a time.
func NewEngine(events store.EntityStore[domain.Event], reports ReportSource, extractor Extractor,
	processed store.ProcessedSet, publisher domain.ChangePublisher, maxConcurrent int,
	clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Engine{
		events:        events,
		reports:       reports,
		extractor:     extractor,
		processed:     processed,
		publisher:     publisher,
		maxConcurrent: maxConcurrent,
		clock:         clock,
		metrics:       metrics,
		logger:        logger,
	}
}

// Confirm evaluates every report not yet processed for ev. Each contained
// coordinate is recorded on the matching location. The event is reloaded
// before it is saved, and an event that was completed or confirmed meanwhile
// is left as it is. Reports are marked processed only after they were
// evaluated and the event was saved, so a failed run retries them.
func (e *Engine) Confirm(ctx context.Context, ev domain.Event) (bool, error) {
	if ev.Confirmed {
		return false, nil
	}
	if ev.Office == "" {
		return false, domain.Validationf("event %s has no issuing office", ev.EventKey)
	}

	reports, err := e.reports.Reports(ctx, ev.Office, ev.StartDate)
	if err != nil {
		return false, fmt.Errorf("fetch reports for %s: %w", ev.EventKey, err)
	}

	var (
		evaluated []string
		hits      []domain.Coordinate
	)
	for _, r := range reports {
		done, err := e.processed.IsProcessed(ctx, ev.EventKey, r.ID)
		if err != nil {
			return false, fmt.Errorf("check report %s: %w", r.ID, err)
		}
		if done {
			continue
		}

		coords, err := e.extractor.Coordinates(ctx, r.Text)
		if err != nil {
			e.logger.Warn("coordinate extraction failed", "event_key", ev.EventKey, "report_id", r.ID, "error", err)
			continue
		}
		e.metrics.ReportsEvaluated.Inc()
		for _, c := range coords {
			c = domain.WesternLongitude(c)
			if err := domain.ValidateCoordinate(c); err != nil {
				e.logger.Debug("skipping report coordinate", "report_id", r.ID, "error", err)
				continue
			}
			if observe(&ev, c) {
				hits = append(hits, c)
			}
		}
		evaluated = append(evaluated, r.ID)
	}

	matched := false
	if len(hits) > 0 {
		matched, err = e.save(ctx, ev.EventKey, hits, len(evaluated))
		if err != nil {
			return false, err
		}
	}

	for _, id := range evaluated {
		if err := e.processed.MarkProcessed(ctx, ev.EventKey, id); err != nil {
			return matched, fmt.Errorf("mark report %s: %w", id, err)
		}
	}
	return matched, nil
}

// save applies the matching coordinates to the current copy of the event and
// confirms it. It reports false when the event is no longer active or was
// confirmed by another run.
func (e *Engine) save(ctx context.Context, key string, hits []domain.Coordinate, reports int) (bool, error) {
	ev, err := e.events.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("reload event %s: %w", key, err)
	}
	if !ev.IsActive || ev.Confirmed {
		e.logger.Info("event changed during confirmation, leaving it", "event_key", key, "active", ev.IsActive, "confirmed", ev.Confirmed)
		return false, nil
	}

	matched := false
	for _, c := range hits {
		if observe(&ev, c) {
			matched = true
		}
	}
	if !matched {
		return false, nil
	}

	now := e.clock.Now().UTC()
	ev.Confirmed = true
	ev.UpdatedAt = now
	if err := e.events.Update(ctx, key, ev); err != nil {
		return false, fmt.Errorf("update event %s: %w", key, err)
	}
	e.metrics.EventsConfirmed.Inc()
	e.logger.Info("event confirmed", "event_key", key, "reports", reports)
	change := domain.Change{Entity: domain.EntityEvent, Action: domain.ActionUpdated, Key: key, OccurredAt: now, Payload: ev}
	if err := e.publisher.Publish(ctx, change); err != nil {
		e.logger.Warn("publish event change failed", "event_key", key, "error", err)
	}
	return true, nil
}

// observe records c on every location whose shape contains it.
func observe(ev *domain.Event, c domain.Coordinate) bool {
	hit := false
	p := c.Point()
	for i := range ev.Locations {
		if !domain.ShapeContains(ev.Locations[i].Shape, p) {
			continue
		}
		if ev.Locations[i].ObservedCoordinate == nil {
			obs := c
			ev.Locations[i].ObservedCoordinate = &obs
		}
		hit = true
	}
	return hit
}

// Sweep confirms every active, unconfirmed event. Failures are counted per
// event and never stop the sweep; only listing the store fails it.
func (e *Engine) Sweep(ctx context.Context) (Summary, error) {
	var s Summary
	events, err := e.events.List(ctx, "")
	if err != nil {
		return s, fmt.Errorf("list events: %w", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.maxConcurrent)
	for _, ev := range events {
		if !ev.IsActive || ev.Confirmed {
			continue
		}
		g.Go(func() error {
			ok, err := e.Confirm(ctx, ev)

			mu.Lock()
			defer mu.Unlock()
			s.EventsProcessed++
			switch {
			case err != nil:
				s.EventsFailed++
				e.logger.Error("confirmation failed", "event_key", ev.EventKey, "error", err)
			case ok:
				s.EventsConfirmed++
			}
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("confirmation sweep finished", "processed", s.EventsProcessed, "confirmed", s.EventsConfirmed, "failed", s.EventsFailed)
	return s, nil
}
