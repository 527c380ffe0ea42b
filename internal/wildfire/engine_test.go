package wildfire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/arcgis"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func ms(t time.Time) *float64 { return ptr(float64(t.UnixMilli())) }

func incident(objectID int64, key string, modified time.Time, contained *float64) arcgis.Feature {
	return arcgis.Feature{Properties: arcgis.IncidentProperties{
		ObjectID:                 objectID,
		UniqueFireIdentifier:     key,
		IncidentName:             "Park Fire",
		IncidentShortDescription: "Near Chico",
		FireDiscoveryDateTime:    ms(modified.Add(-47 * time.Hour)),
		ModifiedOnDateTime:       ms(modified),
		POOFips:                  "06007",
		InitialLatitude:          ptr(39.8),
		InitialLongitude:         ptr(-121.6),
		GISAcres:                 ptr(1520.7),
		IncidentComplexityLevel:  "Type 2 Incident",
		PercentContained:         contained,
		PrimaryFuelModel:         "Chaparral",
		SecondaryFuelModel:       "Timber",
	}}
}

type fakeSource struct {
	active  []arcgis.Feature
	byID    map[int64]arcgis.Feature
	err     error
	since   time.Time
	queried []int64
}

func (f *fakeSource) ActiveIncidents(_ context.Context, since time.Time) ([]arcgis.Feature, error) {
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	return f.active, nil
}

func (f *fakeSource) IncidentsByObjectIDs(_ context.Context, ids []int64) ([]arcgis.Feature, error) {
	f.queried = append(f.queried, ids...)
	var out []arcgis.Feature
	for _, id := range ids {
		if feat, ok := f.byID[id]; ok {
			out = append(out, feat)
		}
	}
	return out, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...domain.Change) error { return nil }

func newTestEngine(fires store.EntityStore[domain.Wildfire], src Source, marks store.Watermarks) *Engine {
	return NewEngine(fires, src, marks, nopPublisher{}, 7*24*time.Hour, clockwork.NewFakeClockAt(now),
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func track(t *testing.T, fires store.EntityStore[domain.Wildfire], f arcgis.Feature, at time.Time) domain.Wildfire {
	t.Helper()
	w, err := Parse(f, at)
	require.NoError(t, err)
	_, err = fires.Create(context.Background(), w.EventKey, w)
	require.NoError(t, err)
	return w
}

func TestSync_CreatesNewIncidents(t *testing.T) {
	fires := store.NewMemory[domain.Wildfire]()
	marks := store.NewMemoryWatermarks()
	src := &fakeSource{active: []arcgis.Feature{
		incident(1, "FIRE-1", now.Add(-time.Hour), nil),
		incident(2, "", now.Add(-time.Hour), nil),
		incident(3, "FIRE-3", now.Add(-time.Hour), ptr(20)),
	}}

	s, err := newTestEngine(fires, src, marks).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 2}, s)
	assert.Equal(t, now.Add(-48*time.Hour), src.since)
	assert.Empty(t, src.queried, "fires created this run are not refreshed")

	mark, ok, _ := marks.Get(context.Background(), WatermarkName)
	require.True(t, ok)
	assert.Equal(t, now, mark)

	w, err := fires.Get(context.Background(), "FIRE-3")
	require.NoError(t, err)
	assert.True(t, w.Active)
	assert.Equal(t, 20.0, *w.PercentContained)
}

func TestSync_UsesBufferedWatermark(t *testing.T) {
	marks := store.NewMemoryWatermarks()
	last := now.Add(-24 * time.Hour)
	require.NoError(t, marks.Set(context.Background(), WatermarkName, last))
	src := &fakeSource{}

	_, err := newTestEngine(store.NewMemory[domain.Wildfire](), src, marks).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, last.Add(-48*time.Hour), src.since)
}

func TestSync_SkipsExistingKeys(t *testing.T) {
	fires := store.NewMemory[domain.Wildfire]()
	done := incident(5, "FIRE-5", now.Add(-time.Hour), nil)
	w := track(t, fires, done, now.Add(-72*time.Hour))
	w.Active = false
	require.NoError(t, fires.Update(context.Background(), w.EventKey, w))

	src := &fakeSource{active: []arcgis.Feature{done}}
	s, err := newTestEngine(fires, src, store.NewMemoryWatermarks()).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, s)

	got, _ := fires.Get(context.Background(), "FIRE-5")
	assert.False(t, got.Active, "completed fires stay completed")
}

func TestSync_FullyContainedIsUpdatedThenCompleted(t *testing.T) {
	fires := store.NewMemory[domain.Wildfire]()
	first := incident(10, "FIRE-10", now.Add(-72*time.Hour), ptr(80))
	orig := track(t, fires, first, now.Add(-72*time.Hour))

	latest := incident(10, "FIRE-10", now.Add(-time.Hour), ptr(100))
	latest.Properties.GISAcres = ptr(4000)
	latest.Properties.POOFips = "41001"
	latest.Properties.InitialLatitude = ptr(44.0)
	src := &fakeSource{byID: map[int64]arcgis.Feature{10: latest}}

	s, err := newTestEngine(fires, src, store.NewMemoryWatermarks()).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, Completed: 1}, s)

	got, _ := fires.Get(context.Background(), "FIRE-10")
	assert.False(t, got.Active)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, now, *got.EndDate)
	assert.Equal(t, int64(4000), got.AcresBurned)
	assert.Equal(t, 100.0, *got.PercentContained)
	assert.Equal(t, orig.StartDate, got.StartDate)
	assert.Equal(t, orig.Location.StateFIPS, got.Location.StateFIPS)
	assert.Equal(t, orig.Location.StartingPoint, got.Location.StartingPoint)
}

func TestSync_RefreshAndStaleness(t *testing.T) {
	fires := store.NewMemory[domain.Wildfire]()
	track(t, fires, incident(20, "FIRE-20", now.Add(-48*time.Hour), ptr(10)), now.Add(-48*time.Hour))
	track(t, fires, incident(21, "FIRE-21", now.Add(-10*24*time.Hour), ptr(10)), now.Add(-10*24*time.Hour))
	gone := track(t, fires, incident(22, "FIRE-22", now.Add(-48*time.Hour), ptr(10)), now.Add(-48*time.Hour))

	src := &fakeSource{byID: map[int64]arcgis.Feature{
		20: incident(20, "FIRE-20", now.Add(-time.Hour), ptr(60)),
		21: incident(21, "FIRE-21", now.Add(-8*24*time.Hour), ptr(10)),
	}}

	s, err := newTestEngine(fires, src, store.NewMemoryWatermarks()).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 2, Completed: 1}, s)
	assert.ElementsMatch(t, []int64{20, 21, 22}, src.queried)

	fresh, _ := fires.Get(context.Background(), "FIRE-20")
	assert.True(t, fresh.Active)
	assert.Equal(t, 60.0, *fresh.PercentContained)

	stale, _ := fires.Get(context.Background(), "FIRE-21")
	assert.False(t, stale.Active)

	missing, _ := fires.Get(context.Background(), "FIRE-22")
	assert.Equal(t, gone, missing, "absent from the feed is not a completion")
}

func TestSync_FeedFailureKeepsWatermark(t *testing.T) {
	marks := store.NewMemoryWatermarks()
	src := &fakeSource{err: errors.New("feed down")}

	_, err := newTestEngine(store.NewMemory[domain.Wildfire](), src, marks).Sync(context.Background())
	require.Error(t, err)

	_, ok, _ := marks.Get(context.Background(), WatermarkName)
	assert.False(t, ok)
}
