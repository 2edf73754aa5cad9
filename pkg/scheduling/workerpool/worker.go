package workerpool

import (
	"runtime/debug"
	"time"
)

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	defer p.workerWg.Done()

	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(w.id)
	}
	p.logger.Debug("worker started", "worker_id", w.id)

	for {
		qt, ok := w.next()
		if !ok {
			break
		}
		w.executeTask(qt)
	}

	if p.config.OnWorkerStop != nil {
		p.config.OnWorkerStop(w.id)
	}
}

// next blocks until there is a task to run. It returns false once the worker
// has given up its slot, either because the pool is shutting down or because
// it claimed a pending quit request.
func (w *worker) next() (queuedTask, bool) {
	p := w.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.shutdown {
			p.releaseLocked(w.id)
			p.logger.Debug("worker stopped", "worker_id", w.id, "reason", "shutdown", "live", p.live)
			return queuedTask{}, false
		}

		if !p.queue.empty() {
			qt := p.queue.pop()
			p.notFull.Signal()
			return qt, true
		}

		// Quit requests are only honoured by idle workers, and never below
		// the floor. A request that would breach the floor is dropped.
		if p.pendingQuit > 0 {
			p.pendingQuit--
			if p.live > p.config.MinWorkers {
				p.releaseLocked(w.id)
				p.logger.Debug("worker retired", "worker_id", w.id, "live", p.live)
				return queuedTask{}, false
			}
			p.pendingQuit = 0
		}

		p.notEmpty.Wait()
	}
}

// executeTask runs one task, keeping the busy count and the outstanding count
// correct even if the task panics.
func (w *worker) executeTask(qt queuedTask) {
	p := w.pool

	p.busyMu.Lock()
	p.busy++
	p.busyMu.Unlock()

	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(w.id, qt.task)
	}

	start := time.Now()
	result := Result{
		Task:      qt.task,
		WorkerID:  w.id,
		QueueWait: start.Sub(qt.enqueued),
	}
	result.Error = w.invoke(qt)
	result.Duration = time.Since(start)

	p.completed.Add(1)
	if result.Error != nil {
		p.failed.Add(1)
	}

	if p.config.OnTaskComplete != nil {
		p.config.OnTaskComplete(w.id, result)
	}

	p.busyMu.Lock()
	p.busy--
	p.busyMu.Unlock()

	p.finishTask()
}

// invoke calls the task, converting a panic into a *PanicError.
func (w *worker) invoke(qt queuedTask) (err error) {
	p := w.pool
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			p.panicked.Add(1)
			p.logger.Error("task panicked", "worker_id", w.id, "panic", r)
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(qt.task, r)
			}
		}
	}()
	return qt.task.Execute(qt.ctx)
}

// finishTask accounts for a task that has left the pool and wakes drainers
// once none remain.
func (p *workerPool) finishTask() {
	p.mu.Lock()
	p.outstanding--
	if p.outstanding == 0 {
		p.drained.Broadcast()
	}
	p.mu.Unlock()
}
