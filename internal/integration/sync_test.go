//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-sync/internal/config"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/jobs"
	"github.com/couchcryptid/storm-data-sync/internal/lifecycle"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/scheduler"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChangesTopic = "test-changes"

const tornadoAlert = `{
  "id": "https://api.weather.gov/alerts/urn:oid:1",
  "geometry": {"type": "Polygon", "coordinates": [[[-97.6, 35.1], [-97.2, 35.1], [-97.2, 35.4], [-97.6, 35.1]]]},
  "properties": {
    "id": "urn:oid:1",
    "geocode": {"SAME": ["040027"], "UGC": ["OKC027"]},
    "sent": "2025-05-07T01:00:00Z",
    "effective": "2025-05-07T01:00:00Z",
    "expires": "2025-05-07T02:00:00Z",
    "status": "Actual",
    "severity": "Extreme",
    "certainty": "Observed",
    "urgency": "Immediate",
    "headline": "Tornado Warning issued",
    "eventCode": {"SAME": ["TOR"], "NationalWeatherService": ["TOW"]},
    "parameters": {"VTEC": ["/O.NEW.KOUN.TO.W.0042.250507T0100Z-250507T0200Z/"]}
  }
}`

type changeMessage struct {
	Change  domain.Change
	Event   domain.Event
	Key     string
	Headers map[string]string
}

func readChange(ctx context.Context, t *testing.T, consumer *kafkago.Reader) changeMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from changes topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var envelope struct {
		domain.Change
		Payload domain.Event `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &envelope), "unmarshal change")

	return changeMessage{Change: envelope.Change, Event: envelope.Payload, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testChangesTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestPublisher verifies a change round-trips through Kafka keyed by record key.
func TestPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testChangesTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaChangesTopic: testChangesTopic}
	publisher := kafka.NewPublisher(cfg, observability.NewMetricsForTesting(), discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	at := time.Date(2025, 5, 7, 1, 10, 0, 0, time.UTC)
	require.NoError(t, publisher.Publish(ctx, domain.Change{
		Entity:     domain.EntityEvent,
		Action:     domain.ActionCompleted,
		Key:        "KOUN-TO-WARNING-0042-25",
		OccurredAt: at,
		Payload:    domain.Event{EventKey: "KOUN-TO-WARNING-0042-25", EventType: "TOR"},
	}))

	cm := readChange(ctx, t, newConsumer(t, broker))
	assert.Equal(t, "KOUN-TO-WARNING-0042-25", cm.Key)
	assert.Equal(t, "event", cm.Headers["entity"])
	assert.Equal(t, "completed", cm.Headers["action"])
	assert.Equal(t, at.Format(time.RFC3339), cm.Headers["occurred_at"])
	assert.Equal(t, "TOR", cm.Event.EventType)
}

// TestAlertSyncEndToEnd runs the alerts job against a stub NWS feed with real
// Redis storage and Kafka publishing.
func TestAlertSyncEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := startRedis(ctx, t)
	broker := startKafka(ctx, t)
	createTopic(t, broker, testChangesTopic)

	nws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alerts/active" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = io.WriteString(w, `{"features": [`+tornadoAlert+`]}`)
	}))
	t.Cleanup(nws.Close)

	cfg := &config.Config{
		KafkaBrokers:          []string{broker},
		KafkaChangesTopic:     testChangesTopic,
		NWSBaseURL:            nws.URL,
		NWSUserAgentName:      "test",
		NWSUserAgentEmail:     "ops@example.com",
		NWSCertainty:          []string{"Observed"},
		HTTPClientTimeout:     5 * time.Second,
		HTTPMaxRetries:        1,
		ZoneCacheSize:         10,
		AlertPollInterval:     time.Minute,
		CompletionGracePeriod: time.Hour,
		DroughtSeverityLow:    2,
		DroughtSeverityHigh:   4,
		DroughtTimezone:       time.UTC,
	}
	metrics := observability.NewMetricsForTesting()
	publisher := kafka.NewPublisher(cfg, metrics, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 5, 7, 1, 10, 0, 0, time.UTC))
	stores := jobs.RedisStores(client, "e2e")
	sched := scheduler.New(clock, metrics, discardLogger(), jobs.Build(jobs.Deps{
		Config:    cfg,
		Stores:    stores,
		Publisher: publisher,
		Clock:     clock,
		Metrics:   metrics,
		Logger:    discardLogger(),
	})...)

	res, err := sched.RunNow(ctx, jobs.Alerts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.(lifecycle.Summary).Created)

	ev, err := stores.Events.Get(ctx, "KOUN-TO-WARNING-0042-25")
	require.NoError(t, err)
	assert.True(t, ev.IsActive)
	assert.Equal(t, "urn:oid:1", ev.NWSAlertID)

	cm := readChange(ctx, t, newConsumer(t, broker))
	assert.Equal(t, "KOUN-TO-WARNING-0042-25", cm.Key)
	assert.Equal(t, domain.ActionCreated, cm.Change.Action)
	assert.Equal(t, "urn:oid:1", cm.Event.NWSAlertID)

	// A second poll of the same feed leaves the record unchanged.
	res, err = sched.RunNow(ctx, jobs.Alerts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.(lifecycle.Summary).Created)
}
