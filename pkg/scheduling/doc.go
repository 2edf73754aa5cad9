/*
Package scheduling provides task execution primitives for Go applications.

  - workerpool: Self-scaling worker pool with a bounded task queue
  - statusboard: Redis-backed view of the pools running across instances

Worker Pool:

The pool keeps between MinWorkers and MaxWorkers goroutines. A manager
adds workers while tasks wait and retires them once most sit idle:

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		MaxWorkers:      30,
		MinWorkers:      3,
		QueueCapacity:   100,
		ManagerInterval: 3 * time.Second,
	})
	if err != nil {
		return err
	}
	defer pool.DrainAndShutdown()

	task := workerpool.TaskFunc(func(ctx context.Context) error {
		// Do work
		return nil
	})

	pool.Submit(task)

Status Board:

A Board is a workerpool.Reporter, so a pool publishes itself on every
manager tick:

	board, _ := statusboard.New(statusboard.Config{Redis: rdb})
	config.Reporter = board

	entries, _ := board.Snapshot(ctx)

All scheduling components are thread-safe and integrate with context
for cancellation and timeout handling.
*/
package scheduling
