package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// taskTTL is how long finished tasks stay queryable.
const taskTTL = 24 * time.Hour

// Task is one triggered job run.
type Task struct {
	ID         string     `json:"task_id"`
	Job        string     `json:"job"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Tasks tracks triggered runs in memory.
type Tasks struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewTasks creates an empty task table.
func NewTasks() *Tasks {
	return &Tasks{tasks: make(map[string]*Task)}
}

func (t *Tasks) create(job string, now time.Time) Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, task := range t.tasks {
		if task.FinishedAt != nil && now.Sub(*task.FinishedAt) > taskTTL {
			delete(t.tasks, id)
		}
	}

	task := &Task{ID: uuid.NewString(), Job: job, Status: StatusPending, CreatedAt: now}
	t.tasks[task.ID] = task
	return *task
}

func (t *Tasks) start(id string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if task, ok := t.tasks[id]; ok {
		task.Status = StatusRunning
		task.StartedAt = &now
	}
}

func (t *Tasks) finish(id string, now time.Time, result any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return
	}
	task.FinishedAt = &now
	task.Result = result
	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
		return
	}
	task.Status = StatusSucceeded
}

// Get returns a copy of the task with the given id.
func (t *Tasks) Get(id string) (Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}
