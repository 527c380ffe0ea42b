// Package wildfire keeps wildfire records in step with the NIFC incident feed.
package wildfire

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/arcgis"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/jonboulle/clockwork"
)

const (
	// WatermarkName is the watermark key of the wildfire job.
	WatermarkName = "wildfire"
	// watermarkBuffer re-reads incidents modified shortly before the last run.
	watermarkBuffer = 48 * time.Hour
	jobName         = "wildfire"
)

// Source fetches incidents from the feature service.
type Source interface {
	ActiveIncidents(ctx context.Context, since time.Time) ([]arcgis.Feature, error)
	IncidentsByObjectIDs(ctx context.Context, ids []int64) ([]arcgis.Feature, error)
}

// Summary counts the records touched by one run.
type Summary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Completed int `json:"completed"`
}

// Engine runs the two-phase wildfire sync.
type Engine struct {
	fires      store.EntityStore[domain.Wildfire]
	source     Source
	watermarks store.Watermarks
	publisher  domain.ChangePublisher
	staleness  time.Duration
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewEngine creates a wildfire sync engine. Tracked fires not modified within
// staleness are completed.
func NewEngine(fires store.EntityStore[domain.Wildfire], source Source, watermarks store.Watermarks,
	publisher domain.ChangePublisher, staleness time.Duration, clock clockwork.Clock,
	metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		fires:      fires,
		source:     source,
		watermarks: watermarks,
		publisher:  publisher,
		staleness:  staleness,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// Sync creates records for new incidents, then refreshes and possibly
// completes the fires that were already active. A feed failure aborts the
// run without moving the watermark.
func (e *Engine) Sync(ctx context.Context) (Summary, error) {
	var s Summary
	now := e.clock.Now().UTC()

	last, ok, err := e.watermarks.Get(ctx, WatermarkName)
	if err != nil {
		return s, fmt.Errorf("read wildfire watermark: %w", err)
	}
	if !ok {
		last = now
	}

	tracked, err := e.fires.List(ctx, "")
	if err != nil {
		return s, fmt.Errorf("list wildfires: %w", err)
	}
	active := make(map[string]domain.Wildfire)
	for _, w := range tracked {
		if w.Active {
			active[w.EventKey] = w
		}
	}

	features, err := e.source.ActiveIncidents(ctx, last.Add(-watermarkBuffer))
	if err != nil {
		return s, err
	}
	s.Created = e.createNew(ctx, features, active, now)

	s.Updated, s.Completed, err = e.refreshActive(ctx, active, now)
	if err != nil {
		return s, err
	}

	if err := e.watermarks.Set(ctx, WatermarkName, now); err != nil {
		return s, fmt.Errorf("write wildfire watermark: %w", err)
	}
	e.logger.Info("wildfire sync finished", "created", s.Created, "updated", s.Updated, "completed", s.Completed)
	return s, nil
}

func (e *Engine) createNew(ctx context.Context, features []arcgis.Feature, active map[string]domain.Wildfire, now time.Time) int {
	created := 0
	for _, f := range features {
		w, err := Parse(f, now)
		if err != nil {
			e.logger.Warn("skipping incident", "object_id", f.Properties.ObjectID, "error", err)
			e.metrics.SyncItems.WithLabelValues(jobName, "skipped").Inc()
			continue
		}
		if _, ok := active[w.EventKey]; ok {
			continue
		}

		res, err := e.fires.Create(ctx, w.EventKey, w)
		if err != nil {
			e.logger.Error("create wildfire failed", "event_key", w.EventKey, "error", err)
			e.metrics.SyncItems.WithLabelValues(jobName, "failed").Inc()
			continue
		}
		if !res.Created {
			e.logger.Debug("wildfire already tracked", "event_key", w.EventKey, "active", res.Existing.Active)
			continue
		}
		created++
		e.metrics.SyncItems.WithLabelValues(jobName, domain.ActionCreated).Inc()
		e.publish(ctx, domain.ActionCreated, w, now)
	}
	return created
}

func (e *Engine) refreshActive(ctx context.Context, active map[string]domain.Wildfire, now time.Time) (updated, completed int, err error) {
	byObjectID := make(map[int64]domain.Wildfire, len(active))
	ids := make([]int64, 0, len(active))
	for _, w := range active {
		id, err := strconv.ParseInt(w.ArcGISID, 10, 64)
		if err != nil {
			e.logger.Warn("wildfire has invalid arcgis id", "event_key", w.EventKey, "arcgis_id", w.ArcGISID)
			continue
		}
		byObjectID[id] = w
		ids = append(ids, id)
	}

	features, err := e.source.IncidentsByObjectIDs(ctx, ids)
	if err != nil {
		return 0, 0, err
	}

	for _, f := range features {
		w, ok := byObjectID[f.Properties.ObjectID]
		if !ok {
			continue
		}
		delete(byObjectID, f.Properties.ObjectID)

		refresh(&w, f, now)
		w.UpdatedAt = now
		live := IsLive(f.Properties, now, e.staleness)
		if !live {
			end := now
			w.Active = false
			w.EndDate = &end
		}
		if err := e.fires.Update(ctx, w.EventKey, w); err != nil {
			e.logger.Error("update wildfire failed", "event_key", w.EventKey, "error", err)
			e.metrics.SyncItems.WithLabelValues(jobName, "failed").Inc()
			continue
		}

		updated++
		e.metrics.SyncItems.WithLabelValues(jobName, domain.ActionUpdated).Inc()
		e.publish(ctx, domain.ActionUpdated, w, now)
		if !live {
			completed++
			e.metrics.SyncItems.WithLabelValues(jobName, domain.ActionCompleted).Inc()
			e.logger.Info("wildfire completed", "event_key", w.EventKey)
			e.publish(ctx, domain.ActionCompleted, w, now)
		}
	}

	for _, w := range byObjectID {
		e.logger.Warn("tracked wildfire missing from feed, skipping", "event_key", w.EventKey, "arcgis_id", w.ArcGISID)
	}
	return updated, completed, nil
}

func (e *Engine) publish(ctx context.Context, action string, w domain.Wildfire, now time.Time) {
	change := domain.Change{Entity: domain.EntityWildfire, Action: action, Key: w.EventKey, OccurredAt: now, Payload: w}
	if err := e.publisher.Publish(ctx, change); err != nil {
		e.logger.Warn("publish wildfire change failed", "event_key", w.EventKey, "error", err)
	}
}
