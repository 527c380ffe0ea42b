// Package drought diffs consecutive weekly drought maps per county and keeps
// county drought records in step.
package drought

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/jonboulle/clockwork"
)

const jobName = "drought"

// Source fetches drought maps.
type Source interface {
	Current(ctx context.Context) ([]domain.DroughtPolygon, error)
	Previous(ctx context.Context, date string) ([]domain.DroughtPolygon, error)
}

// Band is the inclusive DM range that counts as drought.
type Band struct {
	Low  int
	High int
}

// Contains reports whether dm falls inside the band.
func (b Band) Contains(dm int) bool {
	return dm >= b.Low && dm <= b.High
}

// Summary counts the records touched by one run.
type Summary struct {
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Completed     int `json:"completed"`
	TotalCounties int `json:"total_counties"`
}

// Engine runs the weekly county drought diff.
type Engine struct {
	droughts  store.EntityStore[domain.Drought]
	counties  store.EntityStore[domain.County]
	source    Source
	publisher domain.ChangePublisher
	band      Band
	location  *time.Location
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewEngine creates a drought sync engine. loc is the time zone the weekly
// publication cutoff is evaluated in.
func NewEngine(droughts store.EntityStore[domain.Drought], counties store.EntityStore[domain.County], source Source,
	publisher domain.ChangePublisher, band Band, loc *time.Location, clock clockwork.Clock,
	metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		droughts:  droughts,
		counties:  counties,
		source:    source,
		publisher: publisher,
		band:      band,
		location:  loc,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Sync compares this week's map with last week's for every reference county.
// Failing to load either map or the county list aborts the run; a failure on
// one county is logged and the run continues.
func (e *Engine) Sync(ctx context.Context) (Summary, error) {
	var s Summary
	now := e.clock.Now().UTC()

	current, err := e.source.Current(ctx)
	if err != nil {
		return s, err
	}
	date := PreviousWeekDate(now, e.location)
	previous, err := e.source.Previous(ctx, date)
	if err != nil {
		return s, err
	}
	counties, err := e.counties.List(ctx, "")
	if err != nil {
		return s, fmt.Errorf("list counties: %w", err)
	}
	s.TotalCounties = len(counties)

	for _, c := range counties {
		action, err := e.syncCounty(ctx, c, current, previous, now)
		if err != nil {
			e.logger.Error("drought county sync failed", "county_fips", c.StateFIPS+c.FIPS, "error", err)
			e.metrics.SyncItems.WithLabelValues(jobName, "failed").Inc()
			continue
		}
		switch action {
		case domain.ActionCreated:
			s.Created++
		case domain.ActionUpdated:
			s.Updated++
		case domain.ActionCompleted:
			s.Completed++
		default:
			continue
		}
		e.metrics.SyncItems.WithLabelValues(jobName, action).Inc()
	}

	e.logger.Info("drought sync finished", "previous_map", date, "counties", s.TotalCounties,
		"created", s.Created, "updated", s.Updated, "completed", s.Completed)
	return s, nil
}

// syncCounty applies the weekly decision table to one county and returns the
// action taken, or "" when nothing changed.
func (e *Engine) syncCounty(ctx context.Context, c domain.County, current, previous []domain.DroughtPolygon, now time.Time) (string, error) {
	p := c.Centroid.Point()
	dm := MaxLevel(current, p)
	nowIn := e.band.Contains(dm)
	wasIn := e.band.Contains(MaxLevel(previous, p))
	key := domain.DroughtKey(c.FIPS, c.StateFIPS)

	existing, err := e.droughts.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if !nowIn {
			return "", nil
		}
		return e.create(ctx, c, key, dm, now)
	case err != nil:
		return "", fmt.Errorf("get drought %s: %w", key, err)
	}

	if !existing.IsActive {
		if nowIn {
			e.logger.Info("county back in drought but its record is closed, skipping", "event_key", key, "severity", domain.DroughtSeverity(dm))
		}
		return "", nil
	}

	switch {
	case wasIn && !nowIn:
		end := now
		existing.IsActive = false
		existing.EndDate = &end
		return e.save(ctx, existing, domain.ActionCompleted, now)
	case wasIn && nowIn:
		if dm <= domain.DroughtLevel(existing.Severity) {
			return "", nil
		}
		severity := domain.DroughtSeverity(dm)
		note := fmt.Sprintf("Drought event continues. Updated severity: %s at %s", severity, now.Format(time.RFC3339))
		if existing.Description != "" {
			note = existing.Description + "\n\n" + note
		}
		existing.Severity = severity
		existing.Description = note
		return e.save(ctx, existing, domain.ActionUpdated, now)
	}
	return "", nil
}

func (e *Engine) create(ctx context.Context, c domain.County, key string, dm int, now time.Time) (string, error) {
	severity := domain.DroughtSeverity(dm)
	d := domain.Drought{
		EventKey:    key,
		Location:    domain.Location{StateFIPS: c.StateFIPS, CountyFIPS: c.FIPS},
		Severity:    severity,
		StartDate:   now,
		Description: fmt.Sprintf("Drought event detected in %s, %s. Severity: %s", c.Name, c.StateAbbr, severity),
		IsActive:    true,
		UpdatedAt:   now,
	}
	res, err := e.droughts.Create(ctx, key, d)
	if err != nil {
		return "", fmt.Errorf("create drought %s: %w", key, err)
	}
	if !res.Created {
		return "", nil
	}
	e.publish(ctx, domain.ActionCreated, d, now)
	return domain.ActionCreated, nil
}

func (e *Engine) save(ctx context.Context, d domain.Drought, action string, now time.Time) (string, error) {
	d.UpdatedAt = now
	if err := e.droughts.Update(ctx, d.EventKey, d); err != nil {
		return "", fmt.Errorf("update drought %s: %w", d.EventKey, err)
	}
	e.publish(ctx, action, d, now)
	return action, nil
}

func (e *Engine) publish(ctx context.Context, action string, d domain.Drought, now time.Time) {
	change := domain.Change{Entity: domain.EntityDrought, Action: action, Key: d.EventKey, OccurredAt: now, Payload: d}
	if err := e.publisher.Publish(ctx, change); err != nil {
		e.logger.Warn("publish drought change failed", "event_key", d.EventKey, "error", err)
	}
}
