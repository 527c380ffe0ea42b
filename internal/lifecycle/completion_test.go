package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlerts struct {
	snaps map[string]domain.AlertSnapshot
	calls int
}

func (f *fakeAlerts) Alert(_ context.Context, id string) (domain.AlertSnapshot, error) {
	f.calls++
	s, ok := f.snaps[id]
	if !ok {
		return domain.AlertSnapshot{}, domain.NotFoundf("alert %s", id)
	}
	return s, nil
}

const grace = time.Hour

func newTestCompleter(events store.EntityStore[domain.Event], alerts AlertSource, now time.Time) (*Completer, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewCompleter(events, alerts, pub, grace, clockwork.NewFakeClockAt(now), observability.NewMetricsForTesting(), quietLogger()), pub
}

func seedEvent(t *testing.T, events store.EntityStore[domain.Event], k, alertID string, expectedEnd time.Time, active bool) {
	t.Helper()
	_, err := events.Create(context.Background(), k, domain.Event{
		EventKey:        k,
		NWSAlertID:      alertID,
		IsActive:        active,
		StartDate:       expectedEnd.Add(-time.Hour),
		ExpectedEndDate: &expectedEnd,
	})
	require.NoError(t, err)
}

func TestSweep_CancelDeactivatesImmediately(t *testing.T) {
	events := store.NewMemory[domain.Event]()
	end := t0
	seedEvent(t, events, key, "a1", end, true)

	ending := t0.Add(-10 * time.Minute)
	alerts := &fakeAlerts{snaps: map[string]domain.AlertSnapshot{
		"a1": {ID: "a1", MessageType: domain.MsgContinue, ReplacedBy: "a2"},
		"a2": {ID: "a2", MessageType: domain.MsgCancel, EventEndingTime: &ending},
	}}
	c, pub := newTestCompleter(events, alerts, t0.Add(5*time.Minute))

	s, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CompletionSummary{Checked: 1, Completed: 1}, s)

	ev, _ := events.Get(context.Background(), key)
	assert.False(t, ev.IsActive)
	require.NotNil(t, ev.ActualEndDate)
	assert.Equal(t, ending, *ev.ActualEndDate)
	assert.Equal(t, []string{domain.ActionCompleted}, pub.actions())
}

func TestSweep_GracePeriod(t *testing.T) {
	expires := t0.Add(30 * time.Minute)
	alerts := &fakeAlerts{snaps: map[string]domain.AlertSnapshot{
		"a1": {ID: "a1", MessageType: domain.MsgContinue, Expires: &expires},
	}}

	t.Run("within grace stays active", func(t *testing.T) {
		events := store.NewMemory[domain.Event]()
		seedEvent(t, events, key, "a1", t0, true)
		c, _ := newTestCompleter(events, alerts, t0.Add(grace-time.Second))

		s, err := c.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, s.Checked)
		assert.Equal(t, 0, s.Completed)

		ev, _ := events.Get(context.Background(), key)
		assert.True(t, ev.IsActive)
	})

	t.Run("past grace deactivates with fallback end", func(t *testing.T) {
		events := store.NewMemory[domain.Event]()
		seedEvent(t, events, key, "a1", t0, true)
		c, _ := newTestCompleter(events, alerts, t0.Add(grace))

		s, err := c.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, s.Completed)

		ev, _ := events.Get(context.Background(), key)
		assert.False(t, ev.IsActive)
		assert.Equal(t, expires, *ev.ActualEndDate)
	})
}

func TestSweep_SkipsNotDueAndInactive(t *testing.T) {
	events := store.NewMemory[domain.Event]()
	seedEvent(t, events, "future", "f1", t0.Add(time.Hour), true)
	seedEvent(t, events, "done", "d1", t0.Add(-3*time.Hour), false)
	_, err := events.Create(context.Background(), "open", domain.Event{EventKey: "open", NWSAlertID: "o1", IsActive: true})
	require.NoError(t, err)

	alerts := &fakeAlerts{}
	c, _ := newTestCompleter(events, alerts, t0)

	s, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CompletionSummary{}, s)
	assert.Equal(t, 0, alerts.calls)
}

func TestSweep_FailureIsIsolated(t *testing.T) {
	events := store.NewMemory[domain.Event]()
	seedEvent(t, events, "missing", "gone", t0.Add(-2*time.Hour), true)
	seedEvent(t, events, key, "a1", t0.Add(-2*time.Hour), true)

	alerts := &fakeAlerts{snaps: map[string]domain.AlertSnapshot{
		"a1": {ID: "a1", MessageType: domain.MsgExpire},
	}}
	now := t0
	c, _ := newTestCompleter(events, alerts, now)

	s, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CompletionSummary{Checked: 2, Completed: 1, Failed: 1}, s)

	ev, _ := events.Get(context.Background(), key)
	assert.Equal(t, now, *ev.ActualEndDate, "no end fields resolves to now")
}

func TestLatest_CapsHops(t *testing.T) {
	snaps := map[string]domain.AlertSnapshot{}
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("a%d", i)
		snaps[id] = domain.AlertSnapshot{ID: id, MessageType: domain.MsgContinue, ReplacedBy: fmt.Sprintf("a%d", i+1)}
	}
	alerts := &fakeAlerts{snaps: snaps}
	c, _ := newTestCompleter(store.NewMemory[domain.Event](), alerts, t0)

	snap, err := c.Latest(context.Background(), "a0")
	require.NoError(t, err)
	assert.Equal(t, "a10", snap.ID)
	assert.Equal(t, 11, alerts.calls)
}

func TestLatest_CycleTerminates(t *testing.T) {
	alerts := &fakeAlerts{snaps: map[string]domain.AlertSnapshot{
		"a": {ID: "a", ReplacedBy: "b"},
		"b": {ID: "b", ReplacedBy: "a"},
	}}
	c, _ := newTestCompleter(store.NewMemory[domain.Event](), alerts, t0)

	_, err := c.Latest(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 11, alerts.calls)
}

func TestLatest_BrokenLinkReturnsLastSeen(t *testing.T) {
	alerts := &fakeAlerts{snaps: map[string]domain.AlertSnapshot{
		"a1": {ID: "a1", MessageType: domain.MsgExtendTime, ReplacedBy: "missing"},
	}}
	c, _ := newTestCompleter(store.NewMemory[domain.Event](), alerts, t0)

	snap, err := c.Latest(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", snap.ID)

	_, err = c.Latest(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
