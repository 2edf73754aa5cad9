package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/elasticpool/pkg/metrics"
)

// MetricsPool wraps a worker Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	name     string
	registry atomic.Pointer[metrics.Registry]
	enabled  atomic.Bool
}

var _ metrics.Instrumentable = (*MetricsPool)(nil)

// NewWithMetrics creates a new worker pool whose metrics are registered with
// the default Prometheus registerer.
func NewWithMetrics(maxWorkers, minWorkers, queueCapacity int, name string) (Pool, error) {
	return NewWithConfigAndMetrics(Config{
		MaxWorkers:    maxWorkers,
		MinWorkers:    minWorkers,
		QueueCapacity: queueCapacity,
	}, name, metrics.Config{Enabled: true})
}

// NewWithConfigAndMetrics creates a new worker pool with custom config and metrics.
// When metricsConfig is disabled it is equivalent to NewWithConfig.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) (Pool, error) {
	if !metricsConfig.Enabled {
		return NewWithConfig(config)
	}
	if name == "" {
		name = config.Name
	}
	if name == "" {
		name = DefaultName
	}
	config.Name = name

	mp := &MetricsPool{name: name}
	mp.registry.Store(metrics.ForConfig(metricsConfig))
	mp.enabled.Store(true)

	config.Reporter = MultiReporter(config.Reporter, ReporterFunc(mp.observe))

	userScale := config.OnScale
	config.OnScale = func(d Decision) {
		mp.recordScale(d)
		if userScale != nil {
			userScale(d)
		}
	}

	userComplete := config.OnTaskComplete
	config.OnTaskComplete = func(workerID int, result Result) {
		mp.recordResult(result)
		if userComplete != nil {
			userComplete(workerID, result)
		}
	}

	basePool, err := NewWithConfig(config)
	if err != nil {
		return nil, err
	}
	mp.pool = basePool

	mp.updateMetrics()
	return mp, nil
}

// updateMetrics updates the current state gauges.
func (mp *MetricsPool) updateMetrics() {
	if !mp.enabled.Load() {
		return
	}
	mp.setGauges(mp.pool.Stats())
}

func (mp *MetricsPool) setGauges(s Stats) {
	r := mp.registry.Load()
	r.WorkerPoolLive.WithLabelValues(mp.name).Set(float64(s.Live))
	r.WorkerPoolBusy.WithLabelValues(mp.name).Set(float64(s.Busy))
	r.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(s.Queued))
	r.WorkerPoolCapacity.WithLabelValues(mp.name).Set(float64(s.Capacity))
}

// observe is the manager-tick reporter.
func (mp *MetricsPool) observe(_ context.Context, s Stats) error {
	if mp.enabled.Load() {
		mp.setGauges(s)
	}
	return nil
}

func (mp *MetricsPool) recordScale(d Decision) {
	if !mp.enabled.Load() {
		return
	}
	mp.registry.Load().ScaleEvents.WithLabelValues(mp.name, d.Action.String()).Inc()
}

func (mp *MetricsPool) recordResult(result Result) {
	if !mp.enabled.Load() {
		return
	}
	r := mp.registry.Load()
	r.TaskExecutionDuration.WithLabelValues(mp.name).Observe(result.Duration.Seconds())
	r.TaskQueueWait.WithLabelValues(mp.name).Observe(result.QueueWait.Seconds())

	var panicErr *PanicError
	switch {
	case errors.As(result.Error, &panicErr):
		r.TasksPanicked.WithLabelValues(mp.name).Inc()
	case result.Error != nil:
		r.TasksFailed.WithLabelValues(mp.name).Inc()
	default:
		r.TasksCompleted.WithLabelValues(mp.name).Inc()
	}
}

// recordSubmit counts a submission outcome and refreshes the gauges.
func (mp *MetricsPool) recordSubmit(err error) error {
	if !mp.enabled.Load() {
		return err
	}
	r := mp.registry.Load()
	if err != nil {
		r.TasksRejected.WithLabelValues(mp.name, rejectReason(err)).Inc()
	} else {
		r.TasksSubmitted.WithLabelValues(mp.name).Inc()
	}
	mp.updateMetrics()
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrShuttingDown):
		return "shutdown"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrNilTask):
		return "nil_task"
	default:
		return "canceled"
	}
}

// Submit adds a task to the pool for execution.
func (mp *MetricsPool) Submit(task Task) error {
	return mp.recordSubmit(mp.pool.Submit(task))
}

// SubmitWithContext submits a task with a context for cancellation.
func (mp *MetricsPool) SubmitWithContext(ctx context.Context, task Task) error {
	return mp.recordSubmit(mp.pool.SubmitWithContext(ctx, task))
}

// SubmitWithTimeout submits a task with a timeout for queuing.
func (mp *MetricsPool) SubmitWithTimeout(task Task, timeout time.Duration) error {
	return mp.recordSubmit(mp.pool.SubmitWithTimeout(task, timeout))
}

// TrySubmit enqueues the task only if the queue has room.
func (mp *MetricsPool) TrySubmit(task Task) error {
	return mp.recordSubmit(mp.pool.TrySubmit(task))
}

// LiveWorkers returns the number of workers that exist.
func (mp *MetricsPool) LiveWorkers() int {
	live := mp.pool.LiveWorkers()
	if mp.enabled.Load() {
		mp.registry.Load().WorkerPoolLive.WithLabelValues(mp.name).Set(float64(live))
	}
	return live
}

// BusyWorkers returns the number of workers currently executing tasks.
func (mp *MetricsPool) BusyWorkers() int {
	busy := mp.pool.BusyWorkers()
	if mp.enabled.Load() {
		mp.registry.Load().WorkerPoolBusy.WithLabelValues(mp.name).Set(float64(busy))
	}
	return busy
}

// QueueSize returns the current number of queued tasks.
func (mp *MetricsPool) QueueSize() int {
	queued := mp.pool.QueueSize()
	if mp.enabled.Load() {
		mp.registry.Load().WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(queued))
	}
	return queued
}

// QueueCapacity returns the fixed capacity of the task queue.
func (mp *MetricsPool) QueueCapacity() int {
	return mp.pool.QueueCapacity()
}

// Stats returns a snapshot of the pool.
func (mp *MetricsPool) Stats() Stats {
	return mp.pool.Stats()
}

// TotalSubmitted returns the total number of tasks submitted.
func (mp *MetricsPool) TotalSubmitted() int64 {
	return mp.pool.TotalSubmitted()
}

// TotalCompleted returns the total number of tasks completed.
func (mp *MetricsPool) TotalCompleted() int64 {
	return mp.pool.TotalCompleted()
}

// Shutdown stops the pool immediately and zeroes the live and busy gauges.
func (mp *MetricsPool) Shutdown() {
	mp.pool.Shutdown()
	mp.updateMetrics()
}

// DrainAndShutdown waits for accepted tasks, then shuts down.
func (mp *MetricsPool) DrainAndShutdown() {
	mp.pool.DrainAndShutdown()
	mp.updateMetrics()
}

// DrainAndShutdownContext waits for accepted tasks or ctx, then shuts down.
func (mp *MetricsPool) DrainAndShutdownContext(ctx context.Context) error {
	err := mp.pool.DrainAndShutdownContext(ctx)
	mp.updateMetrics()
	return err
}

// Done returns a channel closed once the wrapped pool has shut down.
func (mp *MetricsPool) Done() <-chan struct{} {
	return mp.pool.Done()
}

// EnableMetrics enables metrics collection, switching registries if
// config names a different registerer.
func (mp *MetricsPool) EnableMetrics(config metrics.Config) error {
	if config.Registry != nil {
		mp.registry.Store(metrics.ForConfig(config))
	}
	mp.enabled.Store(config.Enabled)
	mp.updateMetrics()
	return nil
}

// DisableMetrics disables metrics collection.
func (mp *MetricsPool) DisableMetrics() {
	mp.enabled.Store(false)
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mp *MetricsPool) MetricsEnabled() bool {
	return mp.enabled.Load()
}
