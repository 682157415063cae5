package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devrev/securegpx/internal/errors"
	"github.com/devrev/securegpx/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action tags a task with the notification it triggers after running
type Action int

const (
	ActionChangeData Action = iota
	ActionValidation
	ActionSave
	ActionInit

	actionFlush
)

func (a Action) String() string {
	switch a {
	case ActionChangeData:
		return "change_data"
	case ActionValidation:
		return "validation"
	case ActionSave:
		return "save"
	case ActionInit:
		return "init"
	case actionFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// Task is a unit of work for the queue
type Task struct {
	ID     string
	Action Action
	Fn     func(context.Context) error
	// Notify runs on the worker right after Fn with its result, also when
	// Fn failed or panicked.
	Notify  func(err error)
	Context context.Context
}

// Queue runs tasks one at a time on a single worker goroutine, strictly in
// submission order. Everything a task touches is owned by the worker while
// the task runs, so stores mutated only through the queue need no locking.
type Queue struct {
	name      string
	queueSize int
	tasks     chan Task
	logger    *zap.Logger
	metrics   *metrics.Metrics

	// mu guards stopped and the send side of tasks
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
	done     chan struct{}

	totalTasks     uint64
	completedTasks uint64
	failedTasks    uint64
	rejectedTasks  uint64
}

// Config holds queue configuration
type Config struct {
	Name      string
	QueueSize int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// NewQueue creates a queue and returns once its worker is running
func NewQueue(cfg *Config) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "gpx"
	}

	q := &Queue{
		name:      cfg.Name,
		queueSize: cfg.QueueSize,
		tasks:     make(chan Task, cfg.QueueSize),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		done:      make(chan struct{}),
	}

	started := make(chan struct{})
	go q.worker(started)
	<-started

	q.logger.Info("Mutation queue started",
		zap.String("name", q.name),
		zap.Int("queue_size", q.queueSize))

	return q
}

func (q *Queue) worker(started chan<- struct{}) {
	defer close(q.done)
	close(started)

	for task := range q.tasks {
		q.executeTask(task)
	}

	q.logger.Debug("Mutation queue worker exiting", zap.String("queue", q.name))
}

func (q *Queue) executeTask(task Task) {
	start := time.Now()

	err := q.safeExecute(task)
	q.safeNotify(task, err)

	duration := time.Since(start)
	q.metrics.RecordTask(task.Action.String(), duration.Seconds(), err != nil)
	q.metrics.UpdateQueueDepth(len(q.tasks))

	if err != nil {
		atomic.AddUint64(&q.failedTasks, 1)
		q.logger.Error("Task failed",
			zap.String("queue", q.name),
			zap.String("task_id", task.ID),
			zap.Stringer("action", task.Action),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}
	atomic.AddUint64(&q.completedTasks, 1)
	q.logger.Debug("Task completed",
		zap.String("queue", q.name),
		zap.String("task_id", task.ID),
		zap.Stringer("action", task.Action),
		zap.Duration("duration", duration))
}

// safeExecute runs the task function with panic recovery
func (q *Queue) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			q.logger.Error("Task panic recovered",
				zap.String("queue", q.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()

	if task.Fn == nil {
		return nil
	}
	ctx := task.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return task.Fn(ctx)
}

func (q *Queue) safeNotify(task Task, err error) {
	if task.Notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Task notification panic recovered",
				zap.String("queue", q.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()
	task.Notify(err)
}

func (q *Queue) prepare(task *Task) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
}

// Submit enqueues a task, blocking while the queue is full. It fails only
// after Stop. Submit must not be called from a running task while the queue
// may be full.
func (q *Queue) Submit(task Task) error {
	return q.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext enqueues a task and gives up when ctx is done before
// there is room in the queue.
func (q *Queue) SubmitWithContext(ctx context.Context, task Task) error {
	q.prepare(&task)

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		atomic.AddUint64(&q.rejectedTasks, 1)
		return errors.QueueStopped(q.name)
	}

	select {
	case <-ctx.Done():
		atomic.AddUint64(&q.rejectedTasks, 1)
		return ctx.Err()
	case q.tasks <- task:
		atomic.AddUint64(&q.totalTasks, 1)
		q.metrics.RecordSubmit(task.Action.String())
		q.metrics.UpdateQueueDepth(len(q.tasks))
		return nil
	}
}

// Flush waits until every task submitted before the call has run
func (q *Queue) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	err := q.SubmitWithContext(ctx, Task{
		Action: actionFlush,
		Fn: func(context.Context) error {
			close(reached)
			return nil
		},
	})
	if err != nil {
		return err
	}

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new tasks, lets the worker drain what is already queued and
// waits for it up to timeout.
func (q *Queue) Stop(timeout time.Duration) error {
	var err error
	q.stopOnce.Do(func() {
		q.logger.Info("Stopping mutation queue", zap.String("name", q.name))

		q.mu.Lock()
		q.stopped = true
		close(q.tasks)
		q.mu.Unlock()

		select {
		case <-q.done:
			q.logger.Info("Mutation queue stopped gracefully", zap.String("name", q.name))
		case <-time.After(timeout):
			err = fmt.Errorf("mutation queue '%s' stop timeout after %v", q.name, timeout)
			q.logger.Warn("Mutation queue stop timeout", zap.String("name", q.name))
		}
	})
	return err
}

// Stats returns current queue statistics
func (q *Queue) Stats() Stats {
	return Stats{
		Name:           q.name,
		QueueSize:      q.queueSize,
		QueuedTasks:    len(q.tasks),
		TotalTasks:     atomic.LoadUint64(&q.totalTasks),
		CompletedTasks: atomic.LoadUint64(&q.completedTasks),
		FailedTasks:    atomic.LoadUint64(&q.failedTasks),
		RejectedTasks:  atomic.LoadUint64(&q.rejectedTasks),
	}
}

// Stats represents queue statistics
type Stats struct {
	Name           string
	QueueSize      int
	QueuedTasks    int
	TotalTasks     uint64
	CompletedTasks uint64
	FailedTasks    uint64
	RejectedTasks  uint64
}

// QueueUtilization returns the queue utilization as a percentage
func (s Stats) QueueUtilization() float64 {
	if s.QueueSize == 0 {
		return 0
	}
	return (float64(s.QueuedTasks) / float64(s.QueueSize)) * 100.0
}

// SuccessRate returns the task success rate as a percentage
func (s Stats) SuccessRate() float64 {
	if s.TotalTasks == 0 {
		return 100.0
	}
	return (float64(s.CompletedTasks) / float64(s.TotalTasks)) * 100.0
}
