/*
Package workerpool provides a self-scaling worker pool.

A pool owns a bounded FIFO task queue and a set of worker goroutines whose size
floats between a minimum and a maximum. A manager goroutine samples the pool on
a schedule and adds workers while the backlog exceeds the live worker count, or
retires idle workers while fewer than half of them are busy.

Basic usage:

	pool, err := workerpool.New(8, 2, 100) // up to 8 workers, at least 2, queue of 100
	if err != nil {
		log.Fatal(err)
	}
	defer pool.DrainAndShutdown()

	task := workerpool.TaskFunc(func(ctx context.Context) error {
		// Do work
		return nil
	})

	if err := pool.Submit(task); err != nil {
		log.Printf("Failed to submit: %v", err)
	}

Task Interface:

Tasks implement a simple interface:

	type Task interface {
		Execute(ctx context.Context) error
	}

A task's arguments are whatever its closure captures. The pool never copies or
frees them.

Submission Methods:

	// Blocks while the queue is full
	err := pool.Submit(task)

	// Gives up when ctx ends; ctx is also passed to Execute
	err := pool.SubmitWithContext(ctx, task)

	// Gives up after a timeout
	err := pool.SubmitWithTimeout(task, time.Second)

	// Never blocks
	err := pool.TrySubmit(task)

Submissions fail with ErrShuttingDown once shutdown has begun, and with
ErrQueueFull (wrapping the context error, if any) when the caller stops
waiting for room. Both wrap the sentinels in pkg/common/errors, so
errors.Is(err, errors.ErrClosed) and errors.Is(err, errors.ErrCapacityExceeded)
also work.

Scaling:

Every tick the manager evaluates a Stats snapshot:

  - if queued > live and live < max, it starts min(ScaleStep, max-live) workers
  - otherwise, if live > 2*busy and live > min, it posts min(ScaleStep, live-min)
    quit requests

A quit request is honoured only by an idle worker that finds the queue empty,
and never takes the pool below MinWorkers. The tick rate is ManagerInterval,
or any cron.Schedule via ManagerSchedule:

	schedule, err := workerpool.ParseSchedule("@every 10s")
	pool, err := workerpool.NewWithConfig(workerpool.Config{
		MaxWorkers:      16,
		MinWorkers:      2,
		QueueCapacity:   256,
		ManagerSchedule: schedule,
	})

Shutdown:

Shutdown is immediate: running tasks finish, queued tasks are discarded. It
blocks until every worker and the manager have exited and may be called any
number of times. DrainAndShutdown first waits until every accepted task has
finished. Neither may be called from inside a task.

Observability:

Config.Logger receives structured logs. Config.Reporter receives a Stats
snapshot after every manager tick, and NewWithConfigAndMetrics exports the
same figures to Prometheus. Panicking tasks are recovered; the panic reaches
Config.PanicHandler and OnTaskComplete as a *PanicError and the worker keeps
running.

Thread Safety:

All pool operations are safe for concurrent use from multiple goroutines.
*/
package workerpool
