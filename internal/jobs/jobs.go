// Package jobs wires the sync engines to their feeds and stores and exposes
// each engine as a scheduler job.
package jobs

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/arcgis"
	"github.com/couchcryptid/storm-data-sync/internal/adapter/nws"
	redisadapter "github.com/couchcryptid/storm-data-sync/internal/adapter/redis"
	"github.com/couchcryptid/storm-data-sync/internal/adapter/upstream"
	"github.com/couchcryptid/storm-data-sync/internal/adapter/usdm"
	"github.com/couchcryptid/storm-data-sync/internal/alerts"
	"github.com/couchcryptid/storm-data-sync/internal/config"
	"github.com/couchcryptid/storm-data-sync/internal/confirmation"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/drought"
	"github.com/couchcryptid/storm-data-sync/internal/lifecycle"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/scheduler"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/couchcryptid/storm-data-sync/internal/wildfire"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

// Job names.
const (
	Alerts       = "alerts"
	Completion   = "completion"
	Confirmation = "confirmation"
	Wildfire     = "wildfire"
	Drought      = "drought"
)

// Stores groups the persistence shared by the engines.
type Stores struct {
	Events     store.EntityStore[domain.Event]
	Wildfires  store.EntityStore[domain.Wildfire]
	Droughts   store.EntityStore[domain.Drought]
	Counties   store.EntityStore[domain.County]
	Processed  store.ProcessedSet
	Watermarks store.Watermarks
}

// RedisStores backs every store with Redis under prefix.
func RedisStores(client goredis.UniversalClient, prefix string) Stores {
	return Stores{
		Events:     redisadapter.NewStore[domain.Event](client, prefix, "event"),
		Wildfires:  redisadapter.NewStore[domain.Wildfire](client, prefix, "wildfire"),
		Droughts:   redisadapter.NewStore[domain.Drought](client, prefix, "drought"),
		Counties:   redisadapter.NewStore[domain.County](client, prefix, "county"),
		Processed:  redisadapter.NewProcessedSet(client, prefix),
		Watermarks: redisadapter.NewWatermarks(client, prefix),
	}
}

// MemoryStores keeps everything in process memory.
func MemoryStores() Stores {
	return Stores{
		Events:     store.NewMemory[domain.Event](),
		Wildfires:  store.NewMemory[domain.Wildfire](),
		Droughts:   store.NewMemory[domain.Drought](),
		Counties:   store.NewMemory[domain.County](),
		Processed:  store.NewMemoryProcessedSet(),
		Watermarks: store.NewMemoryWatermarks(),
	}
}

// Deps are the collaborators every job is built from.
type Deps struct {
	Config    *config.Config
	Stores    Stores
	Publisher domain.ChangePublisher
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Build constructs the engines and returns one job per engine.
func Build(d Deps) []scheduler.Job {
	cfg := d.Config
	header := http.Header{"User-Agent": {cfg.NWSUserAgent()}}
	policy := upstream.DefaultPolicy(cfg.HTTPMaxRetries)
	transport := func(name string) *upstream.Client {
		return upstream.NewClient(name, cfg.HTTPClientTimeout, policy, header, d.Metrics, d.Logger.With("upstream", name))
	}

	nwsClient := nws.NewClient(cfg.NWSBaseURL, transport("nws"), d.Logger)
	zones := nws.NewCachedZoneSource(nwsClient, cfg.ZoneCacheSize, d.Metrics)
	poller := alerts.NewPoller(nwsClient, zones, d.Stores.Watermarks, nws.DefaultAlertQuery(cfg.NWSCertainty),
		cfg.NWSBaseURL, d.Clock, d.Metrics, d.Logger.With("job", Alerts))
	events := lifecycle.NewEngine(d.Stores.Events, d.Publisher, d.Clock, d.Metrics, d.Logger.With("job", Alerts))

	completer := lifecycle.NewCompleter(d.Stores.Events, nwsClient, d.Publisher, cfg.CompletionGracePeriod,
		d.Clock, d.Metrics, d.Logger.With("job", Completion))

	confirmer := confirmation.NewEngine(d.Stores.Events, nwsClient, confirmation.LSRExtractor{}, d.Stores.Processed,
		d.Publisher, cfg.ConfirmationMaxConcurrent, d.Clock, d.Metrics, d.Logger.With("job", Confirmation))

	fires := wildfire.NewEngine(d.Stores.Wildfires, arcgis.NewClient(cfg.WildfireArcGISURL, transport("arcgis"), d.Logger),
		d.Stores.Watermarks, d.Publisher, cfg.WildfireStaleness, d.Clock, d.Metrics, d.Logger.With("job", Wildfire))

	droughts := drought.NewEngine(d.Stores.Droughts, d.Stores.Counties,
		usdm.NewClient(cfg.DroughtCurrentURL, cfg.DroughtArchiveBaseURL, transport("usdm"), d.Logger),
		d.Publisher, drought.Band{Low: cfg.DroughtSeverityLow, High: cfg.DroughtSeverityHigh}, cfg.DroughtTimezone,
		d.Clock, d.Metrics, d.Logger.With("job", Drought))

	return []scheduler.Job{
		{Name: Alerts, Interval: cfg.AlertPollInterval, Run: alertsRun(poller, events, d.Logger)},
		{Name: Completion, Interval: cfg.CompletionInterval, Run: func(ctx context.Context) (any, error) {
			return completer.Sweep(ctx)
		}},
		{Name: Confirmation, Interval: cfg.ConfirmationInterval, Run: func(ctx context.Context) (any, error) {
			return confirmer.Sweep(ctx)
		}},
		{Name: Wildfire, Interval: cfg.WildfireInterval, Run: func(ctx context.Context) (any, error) {
			return fires.Sync(ctx)
		}},
		{Name: Drought, Interval: cfg.DroughtInterval, Run: func(ctx context.Context) (any, error) {
			return droughts.Sync(ctx)
		}},
	}
}

// alertsRun polls the feed and applies the batch. The watermark only moves
// when every alert was applied, so failed alerts are fetched again.
func alertsRun(poller *alerts.Poller, events *lifecycle.Engine, logger *slog.Logger) scheduler.RunFunc {
	return func(ctx context.Context) (any, error) {
		batch, err := poller.Poll(ctx)
		if err != nil {
			return nil, err
		}
		summary := events.Process(ctx, batch.Alerts)
		if summary.Failed > 0 {
			logger.Warn("alert batch had failures, keeping watermark", "failed", summary.Failed)
			return summary, nil
		}
		if err := poller.Commit(ctx, batch); err != nil {
			return summary, err
		}
		return summary, nil
	}
}
