package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/clusterview/internal/logger"
	"github.com/MrSnakeDoc/clusterview/internal/metrics"
)

// Task states.
const (
	StateExecuting = "executing"
	StateSuccess   = "success"
	StateFailed    = "failed"
)

// DefaultHistory is the number of finished tasks kept for listing.
const DefaultHistory = 100

// Task is the bookkeeping record of one tracked mutation.
type Task struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata"`
	State     string         `json:"state"`
	Error     string         `json:"error,omitempty"`
	BeginTime time.Time      `json:"begin_time"`
	EndTime   time.Time      `json:"end_time,omitzero"`
}

// Tracker wraps mutations with task bookkeeping.
type Tracker struct {
	mu      sync.RWMutex
	tasks   []*Task // oldest first
	history int
	logger  logger.Logger
	now     func() time.Time
}

// NewTracker creates a tracker keeping at most history tasks.
func NewTracker(log logger.Logger, history int) *Tracker {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Tracker{
		history: history,
		logger:  log,
		now:     time.Now,
	}
}

// Run executes call as a named task and returns its error unchanged.
func (t *Tracker) Run(ctx context.Context, name string, metadata map[string]any, call func(context.Context) error) error {
	task := &Task{
		ID:        uuid.NewString(),
		Name:      name,
		Metadata:  metadata,
		State:     StateExecuting,
		BeginTime: t.now(),
	}
	t.add(task)

	t.logger.Info("task started",
		logger.String("task", name),
		logger.String("task_id", task.ID),
		logger.Any("metadata", metadata))

	err := call(ctx)

	t.mu.Lock()
	task.EndTime = t.now()
	if err != nil {
		task.State = StateFailed
		task.Error = err.Error()
	} else {
		task.State = StateSuccess
	}
	elapsed := task.EndTime.Sub(task.BeginTime)
	t.mu.Unlock()

	if err != nil {
		metrics.ObserveTask(name, metrics.OutcomeError)
		t.logger.Warn("task failed",
			logger.String("task", name),
			logger.String("task_id", task.ID),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return err
	}

	metrics.ObserveTask(name, metrics.OutcomeSuccess)
	t.logger.Info("task finished",
		logger.String("task", name),
		logger.String("task_id", task.ID),
		logger.Duration("elapsed", elapsed))
	return nil
}

func (t *Tracker) add(task *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tasks = append(t.tasks, task)
	if over := len(t.tasks) - t.history; over > 0 {
		t.tasks = append([]*Task(nil), t.tasks[over:]...)
	}
}

// List returns copies of the tracked tasks, newest first.
func (t *Tracker) List() []Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Task, 0, len(t.tasks))
	for i := len(t.tasks) - 1; i >= 0; i-- {
		out = append(out, *t.tasks[i])
	}
	return out
}

// Executing returns the tasks still running, newest first.
func (t *Tracker) Executing() []Task {
	all := t.List()
	out := all[:0]
	for _, task := range all {
		if task.State == StateExecuting {
			out = append(out, task)
		}
	}
	return out
}
