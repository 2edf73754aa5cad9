package workerpool

import (
	"context"
	"fmt"
	"time"
)

// Submit adds a task to the pool for execution, waiting for queue space.
// The task will be executed with context.Background().
// Use SubmitWithContext to provide a custom context.
func (p *workerPool) Submit(task Task) error {
	return p.submit(context.Background(), context.Background(), task)
}

// SubmitWithContext adds a task to the pool for execution with the given context.
// The context bounds the wait for queue space and is passed to the task's
// Execute method.
func (p *workerPool) SubmitWithContext(ctx context.Context, task Task) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.submit(ctx, ctx, task)
}

// SubmitWithTimeout waits at most timeout for queue space.
func (p *workerPool) SubmitWithTimeout(task Task, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.submit(ctx, context.Background(), task)
}

// submit enqueues task, waiting for room until waitCtx ends. taskCtx is
// what the task later executes with.
func (p *workerPool) submit(waitCtx, taskCtx context.Context, task Task) error {
	if task == nil {
		p.rejected.Add(1)
		return ErrNilTask
	}

	// A pre-canceled context is rejected deterministically, even if the
	// queue has room.
	if err := waitCtx.Err(); err != nil {
		p.rejected.Add(1)
		return fmt.Errorf("cannot submit task: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.full() && !p.shutdown && waitCtx.Done() != nil {
		stop := context.AfterFunc(waitCtx, func() {
			p.mu.Lock()
			p.notFull.Broadcast()
			p.mu.Unlock()
		})
		defer stop()
	}

	for p.queue.full() && !p.shutdown {
		if err := waitCtx.Err(); err != nil {
			p.rejected.Add(1)
			return fmt.Errorf("%w: %w", ErrQueueFull, err)
		}
		p.notFull.Wait()
	}

	return p.enqueueLocked(taskCtx, task)
}

// TrySubmit enqueues the task only if the queue has room right now.
func (p *workerPool) TrySubmit(task Task) error {
	if task == nil {
		p.rejected.Add(1)
		return ErrNilTask
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.shutdown && p.queue.full() {
		p.rejected.Add(1)
		return ErrQueueFull
	}
	return p.enqueueLocked(context.Background(), task)
}

// enqueueLocked appends task to the queue and wakes one waiting worker.
// p.mu must be held and the queue must not be full unless shutting down.
func (p *workerPool) enqueueLocked(ctx context.Context, task Task) error {
	if p.shutdown {
		p.rejected.Add(1)
		return ErrShuttingDown
	}

	p.queue.push(queuedTask{task: task, ctx: ctx, enqueued: time.Now()})
	p.outstanding++
	p.submitted.Add(1)
	p.notEmpty.Signal()
	return nil
}

// LiveWorkers returns the number of workers that exist.
func (p *workerPool) LiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// BusyWorkers returns the number of workers currently executing tasks.
func (p *workerPool) BusyWorkers() int {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	return p.busy
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *workerPool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}

// QueueCapacity returns the fixed capacity of the task queue.
func (p *workerPool) QueueCapacity() int {
	return p.queue.cap()
}

// TotalSubmitted returns the total number of tasks accepted by the pool.
func (p *workerPool) TotalSubmitted() int64 {
	return p.submitted.Load()
}

// TotalCompleted returns the total number of tasks that finished executing.
func (p *workerPool) TotalCompleted() int64 {
	return p.completed.Load()
}

// Stats returns a snapshot of the pool.
func (p *workerPool) Stats() Stats {
	s := Stats{
		Name:       p.config.Name,
		Capacity:   p.queue.cap(),
		MinWorkers: p.config.MinWorkers,
		MaxWorkers: p.config.MaxWorkers,
	}

	p.mu.Lock()
	s.Live = p.live
	s.Queued = p.queue.len()
	s.PendingQuit = p.pendingQuit
	s.ShuttingDown = p.shutdown
	p.mu.Unlock()

	p.busyMu.Lock()
	s.Busy = p.busy
	p.busyMu.Unlock()

	s.Submitted = p.submitted.Load()
	s.Completed = p.completed.Load()
	s.Failed = p.failed.Load()
	s.Panicked = p.panicked.Load()
	s.Rejected = p.rejected.Load()
	s.Discarded = p.discarded.Load()
	s.Time = time.Now()
	return s
}

// Shutdown stops the pool immediately, discarding queued tasks.
func (p *workerPool) Shutdown() {
	p.shutdownOnce.Do(p.shutdownNow)
}

func (p *workerPool) shutdownNow() {
	start := time.Now()

	p.mu.Lock()
	p.shutdown = true
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	p.drained.Broadcast()
	p.mu.Unlock()

	close(p.stopCh)
	<-p.managerDone
	p.workerWg.Wait()

	p.mu.Lock()
	discarded := p.queue.clear()
	p.outstanding -= discarded
	p.mu.Unlock()
	p.discarded.Add(int64(discarded))
	close(p.done)

	p.logger.Info("worker pool shut down",
		"discarded", discarded,
		"completed", p.completed.Load(),
		"duration", time.Since(start))
}

// Done returns a channel closed once shutdown has completed.
func (p *workerPool) Done() <-chan struct{} {
	return p.done
}

// DrainAndShutdown waits for every accepted task to finish, then shuts down.
func (p *workerPool) DrainAndShutdown() {
	_ = p.DrainAndShutdownContext(context.Background())
}

// DrainAndShutdownContext waits for every accepted task to finish, or for ctx
// to end, then shuts down.
func (p *workerPool) DrainAndShutdownContext(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.logger.Info("draining worker pool")

	err := p.waitDrained(ctx)
	if err != nil {
		p.logger.Warn("drain interrupted", "error", err)
	}
	p.Shutdown()
	return err
}

// waitDrained blocks until no accepted task is outstanding, the pool is shut
// down by someone else, or ctx ends. Submissions remain open meanwhile.
func (p *workerPool) waitDrained(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			p.mu.Lock()
			p.drained.Broadcast()
			p.mu.Unlock()
		})
		defer stop()
	}

	for p.outstanding > 0 && !p.shutdown {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.drained.Wait()
	}
	return nil
}
