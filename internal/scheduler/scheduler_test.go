package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(clock clockwork.Clock, jobs ...Job) *Scheduler {
	return New(clock, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)), jobs...)
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(clockwork.NewFakeClock(), Job{Name: "alerts", Run: func(context.Context) (any, error) {
		return map[string]int{"created": 2}, nil
	}})

	res, err := s.RunNow(context.Background(), "alerts")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"created": 2}, res)

	_, err = s.RunNow(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRunNow_RecoversPanic(t *testing.T) {
	s := newTestScheduler(clockwork.NewFakeClock(), Job{Name: "bad", Run: func(context.Context) (any, error) {
		panic("boom")
	}})

	_, err := s.RunNow(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestTrigger_TracksTask(t *testing.T) {
	release := make(chan struct{})
	s := newTestScheduler(clockwork.NewFakeClock(),
		Job{Name: "drought", Run: func(context.Context) (any, error) {
			<-release
			return "done", nil
		}},
		Job{Name: "wildfire", Run: func(context.Context) (any, error) {
			return nil, errors.New("feed down")
		}},
	)

	task, err := s.Trigger(context.Background(), "drought")
	require.NoError(t, err)
	assert.Equal(t, "drought", task.Job)
	assert.Equal(t, StatusPending, task.Status)
	assert.NotEmpty(t, task.ID)

	require.Eventually(t, func() bool {
		got, _ := s.Task(task.ID)
		return got.Status == StatusRunning
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		got, _ := s.Task(task.ID)
		return got.Status == StatusSucceeded
	}, time.Second, 5*time.Millisecond)
	got, _ := s.Task(task.ID)
	assert.Equal(t, "done", got.Result)

	failed, err := s.Trigger(context.Background(), "wildfire")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, _ := s.Task(failed.ID)
		return got.Status == StatusFailed
	}, time.Second, 5*time.Millisecond)
	got, _ = s.Task(failed.ID)
	assert.Equal(t, "feed down", got.Error)

	_, err = s.Trigger(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, ok := s.Task("missing")
	assert.False(t, ok)
}

func TestTrigger_SurvivesCallerCancel(t *testing.T) {
	var ran atomic.Bool
	s := newTestScheduler(clockwork.NewFakeClock(), Job{Name: "alerts", Run: func(ctx context.Context) (any, error) {
		ran.Store(ctx.Err() == nil)
		return nil, nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	task, err := s.Trigger(ctx, "alerts")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		got, _ := s.Task(task.ID)
		return got.Status == StatusSucceeded
	}, time.Second, 5*time.Millisecond)
	assert.True(t, ran.Load())
}

func TestRunsNeverOverlap(t *testing.T) {
	var running, maxRunning atomic.Int32
	s := newTestScheduler(clockwork.NewFakeClock(), Job{Name: "alerts", Run: func(context.Context) (any, error) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}})

	ids := make([]string, 0, 3)
	for range 3 {
		task, err := s.Trigger(context.Background(), "alerts")
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}
	_, err := s.RunNow(context.Background(), "alerts")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if got, _ := s.Task(id); got.Status != StatusSucceeded {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestRun_Periodic(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	s := newTestScheduler(clock,
		Job{Name: "alerts", Interval: time.Minute, Run: func(context.Context) (any, error) {
			calls.Add(1)
			return nil, nil
		}},
		Job{Name: "manual", Run: func(context.Context) (any, error) {
			t.Error("jobs without an interval only run when triggered")
			return nil, nil
		}},
	)
	require.Error(t, s.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, s.CheckReadiness(context.Background()))

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Error(t, s.CheckReadiness(context.Background()))
	assert.Equal(t, []string{"alerts", "manual"}, s.Jobs())
}
