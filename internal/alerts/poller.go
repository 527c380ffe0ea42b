package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/nws"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/jonboulle/clockwork"
)

// WatermarkName is the watermark key of the alert feed.
const WatermarkName = "alerts"

// Feed is the active alerts endpoint.
type Feed interface {
	ActiveAlerts(ctx context.Context, q nws.AlertQuery, since time.Time) (nws.AlertPage, error)
}

// Batch is the result of one poll.
type Batch struct {
	Alerts      []domain.Alert
	NotModified bool
	// Watermark is the value to persist once the batch has been applied.
	Watermark time.Time
}

// Poller fetches and normalizes the active alerts feed.
type Poller struct {
	feed        Feed
	zones       nws.ZoneSource
	watermarks  store.Watermarks
	query       nws.AlertQuery
	zoneBaseURL string
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewPoller creates a poller. zones resolves boundaries for alerts without
// an inline geometry.
func NewPoller(feed Feed, zones nws.ZoneSource, watermarks store.Watermarks, query nws.AlertQuery,
	zoneBaseURL string, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		feed:        feed,
		zones:       zones,
		watermarks:  watermarks,
		query:       query,
		zoneBaseURL: zoneBaseURL,
		clock:       clock,
		metrics:     metrics,
		logger:      logger,
	}
}

// Poll fetches the feed conditionally on the stored watermark. A not-modified
// response is an empty batch. Features that fail normalization are counted
// and skipped.
func (p *Poller) Poll(ctx context.Context) (Batch, error) {
	started := p.clock.Now().UTC()

	since, _, err := p.watermarks.Get(ctx, WatermarkName)
	if err != nil {
		return Batch{}, fmt.Errorf("read alert watermark: %w", err)
	}

	page, err := p.feed.ActiveAlerts(ctx, p.query, since)
	if err != nil {
		return Batch{}, err
	}
	if page.NotModified {
		p.logger.Info("alert feed not modified", "since", since)
		return Batch{NotModified: true}, nil
	}

	p.metrics.AlertsFetched.Add(float64(len(page.Features)))
	batch := Batch{Watermark: started}
	if !page.LastModified.IsZero() {
		batch.Watermark = page.LastModified
	}

	for _, f := range page.Features {
		a, err := Normalize(f, p.query, p.zoneBaseURL)
		if err != nil {
			var rej *RejectError
			reason := "invalid"
			if errors.As(err, &rej) {
				reason = rej.Reason
			}
			p.metrics.AlertsRejected.WithLabelValues(reason).Inc()
			p.logger.Debug("skipping alert", "reason", reason, "error", err)
			continue
		}
		p.resolveShapes(ctx, &a)
		batch.Alerts = append(batch.Alerts, a)
	}

	p.logger.Info("polled alert feed", "features", len(page.Features), "alerts", len(batch.Alerts))
	return batch, nil
}

// Commit persists the batch watermark. Callers commit only after the batch
// was applied so a failed run re-reads the same alerts.
func (p *Poller) Commit(ctx context.Context, b Batch) error {
	if b.NotModified || b.Watermark.IsZero() {
		return nil
	}
	if err := p.watermarks.Set(ctx, WatermarkName, b.Watermark); err != nil {
		return fmt.Errorf("write alert watermark: %w", err)
	}
	return nil
}

// resolveShapes fetches zone boundaries. A failed lookup leaves that one
// location without a shape.
func (p *Poller) resolveShapes(ctx context.Context, a *domain.Alert) {
	for i := range a.Locations {
		loc := &a.Locations[i]
		if loc.ZoneEndpoint == "" || len(loc.Shape) > 0 {
			continue
		}
		shape, err := p.zones.ZoneShape(ctx, loc.ZoneEndpoint)
		if err != nil {
			p.logger.Warn("zone geometry unavailable", "alert_id", a.ID, "zone", loc.ZoneEndpoint, "error", err)
			continue
		}
		loc.Shape = shape
	}
}
