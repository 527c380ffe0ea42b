// Package lifecycle applies normalized alerts to the event store and retires
// events whose alerts have ended.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/jonboulle/clockwork"
)

// Outcome classifies what applying one alert did.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeReplaced  Outcome = "replaced"
	OutcomeMerged    Outcome = "merged"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Summary counts the outcomes of one batch.
type Summary struct {
	Received   int `json:"received"`
	Unique     int `json:"unique"`
	Created    int `json:"created"`
	Replaced   int `json:"replaced"`
	Merged     int `json:"merged"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeReplaced:
		s.Replaced++
	case OutcomeMerged:
		s.Merged++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}

// Engine is the event lifecycle state machine.
type Engine struct {
	events    store.EntityStore[domain.Event]
	publisher domain.ChangePublisher
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewEngine creates a lifecycle engine.
func NewEngine(events store.EntityStore[domain.Event], publisher domain.ChangePublisher, clock clockwork.Clock,
	metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{events: events, publisher: publisher, clock: clock, metrics: metrics, logger: logger}
}

// Process dedups a poll batch and applies each alert. One alert's failure is
// logged and counted; the batch continues.
func (e *Engine) Process(ctx context.Context, alerts []domain.Alert) Summary {
	unique := Dedup(alerts)
	s := Summary{Received: len(alerts), Unique: len(unique)}
	for _, a := range unique {
		o, err := e.Apply(ctx, a)
		if err != nil {
			e.logger.Error("apply alert failed", "alert_id", a.ID, "key", a.Key, "error", err)
		}
		s.add(o)
	}
	e.logger.Info("processed alert batch",
		"received", s.Received, "created", s.Created, "replaced", s.Replaced, "merged", s.Merged,
		"duplicates", s.Duplicates, "skipped", s.Skipped, "failed", s.Failed)
	return s
}

// Apply classifies one alert against the store and performs the transition.
// Creation relies on the store's atomic create-if-absent; losing that race
// falls back to the update path unless the alert was already applied.
func (e *Engine) Apply(ctx context.Context, a domain.Alert) (Outcome, error) {
	o, err := e.apply(ctx, a)
	e.metrics.LifecycleOutcomes.WithLabelValues(string(o)).Inc()
	return o, err
}

func (e *Engine) apply(ctx context.Context, a domain.Alert) (Outcome, error) {
	existing, err := e.events.Get(ctx, a.Key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if a.MessageType != domain.MsgNew && a.MessageType != domain.MsgUpgrade {
			e.logger.Debug("no event for non-creating alert", "alert_id", a.ID, "key", a.Key, "message_type", a.MessageType)
			return OutcomeSkipped, nil
		}
		ev := e.newEvent(a)
		res, err := e.events.Create(ctx, a.Key, ev)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("create event %s: %w", a.Key, err)
		}
		if res.Created {
			e.publish(ctx, domain.ActionCreated, a.Key, ev)
			return OutcomeCreated, nil
		}
		e.logger.Warn("event created concurrently, falling back to update", "alert_id", a.ID, "key", a.Key)
		existing = res.Existing
	case err != nil:
		return OutcomeFailed, fmt.Errorf("get event %s: %w", a.Key, err)
	}

	if existing.HasSeen(a.ID) {
		return OutcomeDuplicate, nil
	}
	return e.update(ctx, existing, a)
}

func (e *Engine) update(ctx context.Context, ev domain.Event, a domain.Alert) (Outcome, error) {
	if !ev.IsActive {
		e.logger.Debug("ignoring alert for inactive event", "alert_id", a.ID, "key", a.Key)
		return OutcomeSkipped, nil
	}

	var outcome Outcome
	switch {
	case domain.IsTerminalMessage(a.MessageType):
		// Completion sweeps own the ACTIVE to INACTIVE transition.
		return OutcomeSkipped, nil
	case a.MessageType == domain.MsgCorrection || a.MessageType == domain.MsgUpgrade:
		replace(&ev, a)
		outcome = OutcomeReplaced
	default:
		merge(&ev, a)
		outcome = OutcomeMerged
	}
	ev.UpdatedAt = e.clock.Now().UTC()

	if err := e.events.Update(ctx, ev.EventKey, ev); err != nil {
		return OutcomeFailed, fmt.Errorf("update event %s: %w", ev.EventKey, err)
	}
	e.publish(ctx, domain.ActionUpdated, ev.EventKey, ev)
	return outcome, nil
}

func (e *Engine) newEvent(a domain.Alert) domain.Event {
	now := e.clock.Now().UTC()
	start := a.Effective
	if start.IsZero() {
		start = now
	}
	return domain.Event{
		EventKey:        a.Key,
		NWSAlertID:      a.ID,
		PreviousIDs:     []string{},
		EventType:       a.EventCode,
		HREventType:     domain.EventCodeName(a.EventCode),
		Locations:       a.Locations,
		StartDate:       start,
		ExpectedEndDate: a.ExpectedEnd,
		IsActive:        true,
		Confirmed:       domain.IsObserved(a.Certainty),
		Description:     a.EventDescription(),
		RawVTEC:         a.RawVTEC,
		Office:          a.Office,
		UpdatedAt:       now,
	}
}

// replace overwrites the alert-derived fields. Identity, confirmation,
// episode link, activity and damage fields are kept.
func replace(ev *domain.Event, a domain.Alert) {
	ev.Supersede(a.ID)
	ev.EventType = a.EventCode
	ev.HREventType = domain.EventCodeName(a.EventCode)
	ev.Locations = a.Locations
	if !a.Effective.IsZero() {
		ev.StartDate = a.Effective
	}
	ev.ExpectedEndDate = a.ExpectedEnd
	ev.Description = a.EventDescription()
	ev.RawVTEC = a.RawVTEC
	ev.Office = a.Office
	ev.Confirmed = ev.Confirmed || domain.IsObserved(a.Certainty)
}

// merge unions locations and refreshes the end time and text.
func merge(ev *domain.Event, a domain.Alert) {
	ev.Supersede(a.ID)
	ev.MergeLocations(a.Locations)
	ev.ExpectedEndDate = a.ExpectedEnd
	ev.Description = a.EventDescription()
	ev.RawVTEC = a.RawVTEC
	if a.Office != "" {
		ev.Office = a.Office
	}
	ev.Confirmed = ev.Confirmed || domain.IsObserved(a.Certainty)
}

func (e *Engine) publish(ctx context.Context, action, key string, ev domain.Event) {
	change := domain.Change{Entity: domain.EntityEvent, Action: action, Key: key, OccurredAt: e.clock.Now().UTC(), Payload: ev}
	if err := e.publisher.Publish(ctx, change); err != nil {
		e.logger.Warn("publish event change failed", "key", key, "action", action, "error", err)
	}
}
