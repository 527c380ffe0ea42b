// Package scheduler runs sync jobs on fixed intervals and on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/jonboulle/clockwork"
)

// RunFunc executes one run of a job and returns its summary.
type RunFunc func(ctx context.Context) (any, error)

// Job is a named sync job. A zero Interval disables periodic runs; the job
// can still be triggered.
type Job struct {
	Name     string
	Interval time.Duration
	Run      RunFunc
}

type job struct {
	Job
	// mu serializes runs of the same job.
	mu sync.Mutex
}

// Scheduler drives every job from its own ticker.
type Scheduler struct {
	jobs    map[string]*job
	tasks   *Tasks
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
	ready   atomic.Bool
}

// New creates a scheduler for the given jobs.
func New(clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger, jobs ...Job) *Scheduler {
	s := &Scheduler{
		jobs:    make(map[string]*job, len(jobs)),
		tasks:   NewTasks(),
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
	for _, j := range jobs {
		s.jobs[j.Name] = &job{Job: j}
	}
	return s
}

// Jobs returns the registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckReadiness returns nil once the scheduler loop has started.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("scheduler has not started")
	}
	return nil
}

// Run starts every periodic job, running each once immediately, and blocks
// until ctx is cancelled and in-flight runs have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "jobs", s.Jobs())
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)
	s.ready.Store(true)
	defer s.ready.Store(false)

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		if j.Interval <= 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, j)
		}()
	}

	<-ctx.Done()
	s.logger.Info("scheduler stopping", "reason", ctx.Err())
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	ticker := s.clock.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		_, _ = s.execute(ctx, j)
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// RunNow executes a job synchronously, waiting for any in-flight run of the
// same job to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) (any, error) {
	j, ok := s.jobs[name]
	if !ok {
		return nil, domain.NotFoundf("job %s", name)
	}
	return s.execute(ctx, j)
}

// Trigger queues an asynchronous run and returns its task immediately.
// The run outlives ctx's cancellation.
func (s *Scheduler) Trigger(ctx context.Context, name string) (Task, error) {
	j, ok := s.jobs[name]
	if !ok {
		return Task{}, domain.NotFoundf("job %s", name)
	}

	task := s.tasks.create(name, s.clock.Now().UTC())
	runCtx := context.WithoutCancel(ctx)
	go func() {
		j.mu.Lock()
		s.tasks.start(task.ID, s.clock.Now().UTC())
		result, err := s.runLocked(runCtx, j)
		j.mu.Unlock()
		s.tasks.finish(task.ID, s.clock.Now().UTC(), result, err)
	}()

	s.logger.Info("sync triggered", "job", name, "task_id", task.ID)
	return task, nil
}

// Task looks up a triggered run.
func (s *Scheduler) Task(id string) (Task, bool) {
	return s.tasks.Get(id)
}

func (s *Scheduler) execute(ctx context.Context, j *job) (any, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return s.runLocked(ctx, j)
}

func (s *Scheduler) runLocked(ctx context.Context, j *job) (result any, err error) {
	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
		}
		s.metrics.SyncDuration.WithLabelValues(j.Name).Observe(s.clock.Since(start).Seconds())
		if err != nil {
			s.metrics.SyncRuns.WithLabelValues(j.Name, "error").Inc()
			s.logger.Error("job run failed", "job", j.Name, "error", err)
			return
		}
		s.metrics.SyncRuns.WithLabelValues(j.Name, "success").Inc()
		s.logger.Info("job run finished", "job", j.Name, "duration", s.clock.Since(start), "result", result)
	}()

	return j.Run(ctx)
}
