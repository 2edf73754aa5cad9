package workerpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	poolerrors "github.com/vnykmshr/elasticpool/pkg/common/errors"
	"github.com/vnykmshr/elasticpool/pkg/common/validation"
)

const (
	// DefaultScaleStep is the number of workers added or retired per manager tick.
	DefaultScaleStep = 2

	// DefaultManagerInterval is the period between manager ticks.
	DefaultManagerInterval = 3 * time.Second

	// DefaultReportTimeout bounds a single Reporter call.
	DefaultReportTimeout = time.Second

	// DefaultName labels a pool that was not given one.
	DefaultName = "default"
)

var (
	// ErrShuttingDown is returned when a task is submitted to a pool that is
	// shutting down or has shut down.
	ErrShuttingDown = fmt.Errorf("worker pool is shutting down: %w", poolerrors.ErrClosed)

	// ErrQueueFull is returned when the queue has no room and the caller did
	// not wait, or stopped waiting.
	ErrQueueFull = fmt.Errorf("task queue is full: %w", poolerrors.ErrCapacityExceeded)

	// ErrNilTask is returned when a nil task is submitted.
	ErrNilTask = errors.New("task cannot be nil")
)

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result describes a finished task. It is delivered to Config.OnTaskComplete.
type Result struct {
	// Task is the original task that was executed
	Task Task

	// Error is the task's returned error, or a *PanicError if it panicked
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// QueueWait is how long the task sat in the queue before a worker took it
	QueueWait time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// PanicError reports a task that panicked instead of returning.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Stats is a point-in-time snapshot of a pool. Live and Queued are read under
// the pool lock, Busy under the busy lock, so the three are each exact but not
// mutually atomic. A single snapshot may show Busy greater than Live while a
// worker is retiring or a new one is starting; busy <= live holds for the
// pool itself, not for every Stats value.
type Stats struct {
	Name        string
	Live        int
	Busy        int
	Queued      int
	Capacity    int
	MinWorkers  int
	MaxWorkers  int
	PendingQuit int

	Submitted int64
	Completed int64
	Failed    int64
	Panicked  int64
	Rejected  int64
	Discarded int64

	ShuttingDown bool
	Time         time.Time
}

// Idle reports whether nothing is queued and no worker is executing a task.
func (s Stats) Idle() bool {
	return s.Queued == 0 && s.Busy == 0
}

// Pool is a self-scaling worker pool. The number of live workers floats
// between MinWorkers and MaxWorkers according to queue pressure.
type Pool interface {
	// Submit adds a task to the pool, blocking while the queue is full.
	// Returns ErrShuttingDown if the pool is shutting down.
	Submit(task Task) error

	// SubmitWithContext is Submit whose wait for queue space ends when ctx
	// does. The context is also passed to the task's Execute method.
	SubmitWithContext(ctx context.Context, task Task) error

	// SubmitWithTimeout waits at most timeout for queue space. The task
	// itself runs with context.Background().
	SubmitWithTimeout(task Task, timeout time.Duration) error

	// TrySubmit enqueues the task only if there is room right now, returning
	// ErrQueueFull otherwise.
	TrySubmit(task Task) error

	// LiveWorkers returns the number of workers that exist.
	LiveWorkers() int

	// BusyWorkers returns the number of workers currently executing tasks.
	BusyWorkers() int

	// QueueSize returns the current number of queued tasks waiting for execution.
	QueueSize() int

	// QueueCapacity returns the fixed capacity of the task queue.
	QueueCapacity() int

	// Stats returns a snapshot of the pool's counters.
	Stats() Stats

	// TotalSubmitted returns the total number of tasks accepted by the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks that finished executing,
	// successfully or not.
	TotalCompleted() int64

	// Shutdown stops the pool immediately. Running tasks finish, queued tasks
	// are discarded without running. It returns once every worker and the
	// manager have exited. Later calls return at once.
	//
	// It must not be called from inside a task, an OnScale hook or a
	// Reporter: it waits for the worker or manager that would be running it.
	// Start it in a new goroutine from there and wait on Done if needed.
	Shutdown()

	// DrainAndShutdown waits until every accepted task has finished, then
	// calls Shutdown. It must not be called from inside a task.
	DrainAndShutdown()

	// DrainAndShutdownContext is DrainAndShutdown whose wait for the drain
	// ends with ctx. On ctx expiry it shuts down immediately and returns
	// ctx.Err().
	DrainAndShutdownContext(ctx context.Context) error

	// Done returns a channel that is closed once the pool has shut down and
	// every worker has exited. Tasks still queued at that point were
	// discarded and will never run.
	Done() <-chan struct{}
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// MaxWorkers is the upper bound on live workers. Must be greater than 0.
	MaxWorkers int

	// MinWorkers is the number of workers started at creation and the floor
	// the manager shrinks to. Must be in [1, MaxWorkers].
	MinWorkers int

	// QueueCapacity is the maximum number of waiting tasks. Must be greater than 0.
	QueueCapacity int

	// ScaleStep is how many workers the manager adds or retires per tick.
	// Zero means DefaultScaleStep.
	ScaleStep int

	// ManagerInterval is the period of the manager. Zero means
	// DefaultManagerInterval. Ignored when ManagerSchedule is set.
	ManagerInterval time.Duration

	// ManagerSchedule drives the manager from a cron schedule instead of a
	// fixed interval. See ParseSchedule.
	ManagerSchedule cron.Schedule

	// Name labels the pool in logs, metrics and status reports.
	Name string

	// Logger receives the pool's structured logs. Nil discards them.
	Logger *slog.Logger

	// Reporter receives a Stats snapshot after every manager tick.
	Reporter Reporter

	// ReportTimeout bounds each Reporter call. Zero means DefaultReportTimeout.
	ReportTimeout time.Duration

	// PanicHandler is called when a task panics. The worker survives.
	PanicHandler func(task Task, recovered interface{})

	// OnScale is called after the manager acts on a scaling decision.
	OnScale func(decision Decision)

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker exits, whether retired or shut down.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, task Task)

	// OnTaskComplete is called after a task completes (success, failure or panic).
	OnTaskComplete func(workerID int, result Result)
}

func (c Config) withDefaults() Config {
	if c.ScaleStep == 0 {
		c.ScaleStep = DefaultScaleStep
	}
	if c.ManagerInterval == 0 {
		c.ManagerInterval = DefaultManagerInterval
	}
	if c.ReportTimeout == 0 {
		c.ReportTimeout = DefaultReportTimeout
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	return c
}

// Validate checks the configuration, returning a *errors.ValidationError
// for the first problem found.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("workerpool", "MaxWorkers", c.MaxWorkers); err != nil {
		return err
	}
	if err := validation.ValidatePositive("workerpool", "MinWorkers", c.MinWorkers); err != nil {
		return err
	}
	if err := validation.ValidateAtMost("workerpool", "MinWorkers", c.MinWorkers, "MaxWorkers", c.MaxWorkers); err != nil {
		return err
	}
	if err := validation.ValidatePositive("workerpool", "QueueCapacity", c.QueueCapacity); err != nil {
		return err
	}
	if c.ScaleStep != 0 {
		if err := validation.ValidatePositive("workerpool", "ScaleStep", c.ScaleStep); err != nil {
			return err
		}
	}
	if c.ManagerSchedule == nil && c.ManagerInterval != 0 {
		if err := validation.ValidatePositiveDuration("workerpool", "ManagerInterval", c.ManagerInterval); err != nil {
			return err
		}
	}
	if c.ReportTimeout < 0 {
		return poolerrors.NewValidationError("workerpool", "ReportTimeout", c.ReportTimeout, "must not be negative")
	}
	return nil
}

// queuedTask is a task waiting in the ring buffer.
type queuedTask struct {
	task     Task
	ctx      context.Context
	enqueued time.Time
}

// workerPool implements the Pool interface.
type workerPool struct {
	config   Config
	logger   *slog.Logger
	reporter Reporter
	schedule cron.Schedule

	// mu guards everything below up to busyMu. busyMu is never held together
	// with mu.
	mu          sync.Mutex
	notEmpty    *sync.Cond
	notFull     *sync.Cond
	drained     *sync.Cond
	queue       *taskQueue
	freeIDs     []int
	live        int
	pendingQuit int
	outstanding int
	shutdown    bool

	busyMu sync.Mutex
	busy   int

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
	discarded atomic.Int64

	stopCh       chan struct{}
	managerDone  chan struct{}
	done         chan struct{}
	workerWg     sync.WaitGroup
	shutdownOnce sync.Once
}

// worker represents a single worker in the pool.
type worker struct {
	id   int
	pool *workerPool
}

// New creates a pool that starts minWorkers workers, grows up to maxWorkers
// and queues at most queueCapacity tasks.
func New(maxWorkers, minWorkers, queueCapacity int) (Pool, error) {
	return NewWithConfig(Config{
		MaxWorkers:    maxWorkers,
		MinWorkers:    minWorkers,
		QueueCapacity: queueCapacity,
	})
}

// NewWithConfig creates a new worker pool with the specified configuration.
// The returned pool has MinWorkers live workers and a running manager.
func NewWithConfig(config Config) (Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("pool", config.Name)

	schedule := config.ManagerSchedule
	if schedule == nil {
		schedule = Every(config.ManagerInterval)
	}

	p := &workerPool{
		config:      config,
		logger:      logger,
		reporter:    MultiReporter(LogReporter(logger, slog.LevelDebug), config.Reporter),
		schedule:    schedule,
		queue:       newTaskQueue(config.QueueCapacity),
		freeIDs:     make([]int, 0, config.MaxWorkers),
		stopCh:      make(chan struct{}),
		managerDone: make(chan struct{}),
		done:        make(chan struct{}),
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	p.drained = sync.NewCond(&p.mu)

	// Lowest IDs are handed out first.
	for id := config.MaxWorkers - 1; id >= 0; id-- {
		p.freeIDs = append(p.freeIDs, id)
	}

	p.mu.Lock()
	for i := 0; i < config.MinWorkers; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()

	go p.manage()

	logger.Info("worker pool created",
		"min_workers", config.MinWorkers,
		"max_workers", config.MaxWorkers,
		"queue_capacity", config.QueueCapacity,
		"scale_step", config.ScaleStep)

	return p, nil
}

// spawnLocked starts one worker if a slot is free. p.mu must be held.
func (p *workerPool) spawnLocked() bool {
	if p.live >= p.config.MaxWorkers || len(p.freeIDs) == 0 {
		return false
	}
	id := p.freeIDs[len(p.freeIDs)-1]
	p.freeIDs = p.freeIDs[:len(p.freeIDs)-1]
	p.live++

	w := &worker{id: id, pool: p}
	p.workerWg.Add(1)
	go w.run()
	return true
}

// releaseLocked returns a worker's slot. p.mu must be held.
func (p *workerPool) releaseLocked(id int) {
	p.freeIDs = append(p.freeIDs, id)
	p.live--
}
