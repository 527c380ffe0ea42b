package drought

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 15, 17, 0, 0, 0, time.UTC)

type fakeSource struct {
	current  []domain.DroughtPolygon
	previous []domain.DroughtPolygon
	err      error
	date     string
}

func (f *fakeSource) Current(context.Context) ([]domain.DroughtPolygon, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.current, nil
}

func (f *fakeSource) Previous(_ context.Context, date string) ([]domain.DroughtPolygon, error) {
	f.date = date
	return f.previous, nil
}

type recordingPublisher struct {
	changes []domain.Change
}

func (p *recordingPublisher) Publish(_ context.Context, changes ...domain.Change) error {
	p.changes = append(p.changes, changes...)
	return nil
}

// cell is a one-degree drought polygon whose south-west corner is (lon, lat).
func cell(dm int, lon, lat float64) domain.DroughtPolygon {
	return domain.DroughtPolygon{DM: dm, Exteriors: []orb.Ring{{{lon, lat}, {lon + 1, lat}, {lon + 1, lat + 1}, {lon, lat + 1}, {lon, lat}}}}
}

func county(fips, name string, lon, lat float64) domain.County {
	return domain.County{FIPS: fips, StateFIPS: "40", StateAbbr: "OK", Name: name, Centroid: domain.Coordinate{Latitude: lat, Longitude: lon}}
}

type fixture struct {
	droughts *store.Memory[domain.Drought]
	counties *store.Memory[domain.County]
	pub      *recordingPublisher
}

func newFixture(t *testing.T, counties ...domain.County) *fixture {
	t.Helper()
	f := &fixture{
		droughts: store.NewMemory[domain.Drought](),
		counties: store.NewMemory[domain.County](),
		pub:      &recordingPublisher{},
	}
	for _, c := range counties {
		_, err := f.counties.Create(context.Background(), c.StateFIPS+c.FIPS, c)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) engine(src Source, band Band) *Engine {
	ny, _ := time.LoadLocation("America/New_York")
	return NewEngine(f.droughts, f.counties, src, f.pub, band, ny, clockwork.NewFakeClockAt(now),
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (f *fixture) track(t *testing.T, c domain.County, severity string, active bool) {
	t.Helper()
	k := domain.DroughtKey(c.FIPS, c.StateFIPS)
	_, err := f.droughts.Create(context.Background(), k, domain.Drought{
		EventKey:    k,
		Severity:    severity,
		Description: "Drought event detected in " + c.Name + ", OK. Severity: " + severity,
		StartDate:   now.Add(-14 * 24 * time.Hour),
		IsActive:    active,
	})
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, c domain.County) domain.Drought {
	t.Helper()
	d, err := f.droughts.Get(context.Background(), domain.DroughtKey(c.FIPS, c.StateFIPS))
	require.NoError(t, err)
	return d
}

func TestMaxLevel(t *testing.T) {
	polys := []domain.DroughtPolygon{cell(1, -98, 35), cell(3, -98, 35), cell(2, -98, 35), cell(4, -90, 30)}
	assert.Equal(t, 3, MaxLevel(polys, orb.Point{-97.5, 35.5}))
	assert.Equal(t, -1, MaxLevel(polys, orb.Point{-80, 40}))

	hole := domain.DroughtPolygon{DM: 4, Exteriors: cell(4, -98, 35).Exteriors,
		Holes: []orb.Ring{{{-97.8, 35.2}, {-97.2, 35.2}, {-97.2, 35.8}, {-97.8, 35.8}, {-97.8, 35.2}}}}
	assert.Equal(t, -1, MaxLevel([]domain.DroughtPolygon{hole}, orb.Point{-97.5, 35.5}))
}

func TestMaxLevel_LargePolygons(t *testing.T) {
	const n = 20000
	ring := make(orb.Ring, 0, n+1)
	for i := range n {
		a := 2 * math.Pi * float64(i) / n
		ring = append(ring, orb.Point{-100 + 5*math.Cos(a), 40 + 5*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	big, ok := domain.NewDroughtPolygon(2, []orb.Ring{ring}, nil)
	require.True(t, ok)

	// One sync evaluates every county against every polygon of both weeks.
	polys := []domain.DroughtPolygon{big, big, big, big}
	start := time.Now()
	for range 500 {
		assert.Equal(t, -1, MaxLevel(polys, orb.Point{-85, 35}))
	}
	assert.Equal(t, 2, MaxLevel(polys, orb.Point{-101, 41}))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSync_UpgradeWhileTrackedBothWeeks(t *testing.T) {
	oklahoma := county("109", "Oklahoma", -97.5, 35.5)
	f := newFixture(t, oklahoma)
	f.track(t, oklahoma, "D1", true)
	src := &fakeSource{
		previous: []domain.DroughtPolygon{cell(1, -98, 35)},
		current:  []domain.DroughtPolygon{cell(1, -98, 35), cell(3, -98, 35)},
	}

	s, err := f.engine(src, Band{Low: 1, High: 4}).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, TotalCounties: 1}, s)
	assert.Equal(t, "20240109", src.date)

	d := f.get(t, oklahoma)
	assert.Equal(t, "D3", d.Severity)
	assert.True(t, d.IsActive)
	assert.Equal(t, "Drought event detected in Oklahoma, OK. Severity: D1\n\nDrought event continues. Updated severity: D3 at 2024-01-15T17:00:00Z", d.Description)
	require.Len(t, f.pub.changes, 1)
	assert.Equal(t, domain.ActionUpdated, f.pub.changes[0].Action)
}

func TestSync_NeverDowngrades(t *testing.T) {
	oklahoma := county("109", "Oklahoma", -97.5, 35.5)
	f := newFixture(t, oklahoma)
	f.track(t, oklahoma, "D4", true)
	src := &fakeSource{
		previous: []domain.DroughtPolygon{cell(4, -98, 35)},
		current:  []domain.DroughtPolygon{cell(2, -98, 35)},
	}

	s, err := f.engine(src, Band{Low: 2, High: 4}).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{TotalCounties: 1}, s)
	assert.Equal(t, "D4", f.get(t, oklahoma).Severity)
}

func TestSync_CompletesWhenDroughtEnds(t *testing.T) {
	cleveland := county("027", "Cleveland", -97.3, 35.2)
	f := newFixture(t, cleveland)
	f.track(t, cleveland, "D3", true)
	src := &fakeSource{
		previous: []domain.DroughtPolygon{cell(3, -98, 35)},
		current:  []domain.DroughtPolygon{cell(1, -98, 35)},
	}

	s, err := f.engine(src, Band{Low: 2, High: 4}).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Completed: 1, TotalCounties: 1}, s)

	d := f.get(t, cleveland)
	assert.False(t, d.IsActive)
	require.NotNil(t, d.EndDate)
	assert.Equal(t, now, *d.EndDate)
}

func TestSync_CreatesUntrackedCounties(t *testing.T) {
	oklahoma := county("109", "Oklahoma", -97.5, 35.5)
	dry := county("001", "Adair", -94.5, 35.8)
	wet := county("003", "Alfalfa", -98.3, 36.7)
	f := newFixture(t, oklahoma, dry, wet)
	src := &fakeSource{current: []domain.DroughtPolygon{cell(2, -98, 35), cell(0, -99, 36)}}

	s, err := f.engine(src, Band{Low: 2, High: 4}).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 1, TotalCounties: 3}, s)

	d := f.get(t, oklahoma)
	assert.Equal(t, "DRT-109-40", d.EventKey)
	assert.Equal(t, "D2", d.Severity)
	assert.Equal(t, "Drought event detected in Oklahoma, OK. Severity: D2", d.Description)
	assert.Equal(t, "40", d.Location.StateFIPS)
	assert.Equal(t, "109", d.Location.CountyFIPS)
	assert.True(t, d.IsActive)

	_, err = f.droughts.Get(context.Background(), domain.DroughtKey("003", "40"))
	assert.True(t, errors.Is(err, domain.ErrNotFound), "D0 is outside the band")
}

func TestSync_NoopCases(t *testing.T) {
	closed := county("109", "Oklahoma", -97.5, 35.5)
	fresh := county("027", "Cleveland", -97.3, 35.2)
	f := newFixture(t, closed, fresh)
	f.track(t, closed, "D2", false)
	f.track(t, fresh, "D2", true)
	src := &fakeSource{current: []domain.DroughtPolygon{cell(3, -98, 35)}}

	s, err := f.engine(src, Band{Low: 2, High: 4}).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{TotalCounties: 2}, s)
	assert.False(t, f.get(t, closed).IsActive, "closed records are not reopened")
	assert.Equal(t, "D2", f.get(t, fresh).Severity, "only double-tracked counties advance")
	assert.Empty(t, f.pub.changes)
}

func TestSync_MapFailureAborts(t *testing.T) {
	f := newFixture(t, county("109", "Oklahoma", -97.5, 35.5))
	_, err := f.engine(&fakeSource{err: errors.New("map unavailable")}, Band{Low: 2, High: 4}).Sync(context.Background())
	assert.Error(t, err)
}
