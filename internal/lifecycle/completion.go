package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/jonboulle/clockwork"
)

// maxReplacementHops bounds how far replaced-by links are followed.
const maxReplacementHops = 10

// AlertSource looks up a single alert.
type AlertSource interface {
	Alert(ctx context.Context, id string) (domain.AlertSnapshot, error)
}

// CompletionSummary counts the outcome of one sweep.
type CompletionSummary struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Completer retires active events whose expected end has passed.
type Completer struct {
	events    store.EntityStore[domain.Event]
	alerts    AlertSource
	publisher domain.ChangePublisher
	grace     time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewCompleter creates a completion checker. Events without a terminal
// message are retired once grace has passed after their expected end.
func NewCompleter(events store.EntityStore[domain.Event], alerts AlertSource, publisher domain.ChangePublisher,
	grace time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Completer {
	return &Completer{
		events:    events,
		alerts:    alerts,
		publisher: publisher,
		grace:     grace,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Sweep checks every active event that is due. A failure on one event is
// logged and the sweep continues; only listing the store can fail the sweep.
func (c *Completer) Sweep(ctx context.Context) (CompletionSummary, error) {
	var s CompletionSummary
	events, err := c.events.List(ctx, "")
	if err != nil {
		return s, fmt.Errorf("list events: %w", err)
	}

	now := c.clock.Now().UTC()
	for _, ev := range events {
		if !ev.IsActive || ev.ExpectedEndDate == nil || ev.ExpectedEndDate.After(now) {
			continue
		}
		s.Checked++

		done, err := c.check(ctx, ev, now)
		switch {
		case err != nil:
			s.Failed++
			c.logger.Error("completion check failed", "key", ev.EventKey, "alert_id", ev.NWSAlertID, "error", err)
		case done:
			s.Completed++
		}
	}

	c.logger.Info("completion sweep finished", "checked", s.Checked, "completed", s.Completed, "failed", s.Failed)
	return s, nil
}

func (c *Completer) check(ctx context.Context, ev domain.Event, now time.Time) (bool, error) {
	latest, err := c.Latest(ctx, ev.NWSAlertID)
	if err != nil {
		return false, err
	}

	terminal := domain.IsTerminalMessage(latest.MessageType)
	if !terminal && now.Before(ev.ExpectedEndDate.Add(c.grace)) {
		return false, nil
	}

	end := latest.EndTime(now).UTC()
	ev.IsActive = false
	ev.ActualEndDate = &end
	ev.UpdatedAt = now
	if err := c.events.Update(ctx, ev.EventKey, ev); err != nil {
		return false, fmt.Errorf("update event %s: %w", ev.EventKey, err)
	}

	c.metrics.LifecycleOutcomes.WithLabelValues("completed").Inc()
	c.logger.Info("event completed", "key", ev.EventKey, "message_type", latest.MessageType, "actual_end", end)
	change := domain.Change{Entity: domain.EntityEvent, Action: domain.ActionCompleted, Key: ev.EventKey, OccurredAt: now, Payload: ev}
	if err := c.publisher.Publish(ctx, change); err != nil {
		c.logger.Warn("publish event change failed", "key", ev.EventKey, "error", err)
	}
	return true, nil
}

// Latest follows replaced-by links from id to the newest alert. It stops
// after maxReplacementHops, or when a link cannot be fetched, and returns the
// last alert it saw. Only a failure on the first lookup is an error.
func (c *Completer) Latest(ctx context.Context, id string) (domain.AlertSnapshot, error) {
	snap, err := c.alerts.Alert(ctx, id)
	if err != nil {
		return domain.AlertSnapshot{}, err
	}
	for hop := 0; hop < maxReplacementHops && snap.ReplacedBy != ""; hop++ {
		next, err := c.alerts.Alert(ctx, snap.ReplacedBy)
		if err != nil {
			c.logger.Warn("replacement alert unavailable", "alert_id", snap.ReplacedBy, "error", err)
			return snap, nil
		}
		snap = next
	}
	if snap.ReplacedBy != "" {
		c.logger.Warn("replacement chain too long", "alert_id", id, "hops", maxReplacementHops)
	}
	return snap, nil
}
