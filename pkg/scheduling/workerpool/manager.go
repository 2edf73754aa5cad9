package workerpool

import (
	"context"
	"fmt"
	"time"
)

// Action is what the manager decided to do on a tick.
type Action string

const (
	// ActionScaleUp indicates workers should be added.
	ActionScaleUp Action = "scale_up"

	// ActionScaleDown indicates idle workers should retire.
	ActionScaleDown Action = "scale_down"

	// ActionNone indicates no scaling change is needed.
	ActionNone Action = "none"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Decision is the result of evaluating a Stats snapshot.
type Decision struct {
	// Action is the scaling action.
	Action Action

	// Delta is the number of workers to add (positive) or retire (negative).
	// Zero when Action is ActionNone.
	Delta int

	// Reason is a human-readable explanation of the decision.
	Reason string
}

// Evaluate decides how a pool in the given state should scale. Growth is
// checked first; shrinking is only considered when the pool is not growing.
func Evaluate(stats Stats, step int) Decision {
	if step <= 0 {
		step = DefaultScaleStep
	}

	if stats.Queued > stats.Live && stats.Live < stats.MaxWorkers {
		delta := min(step, stats.MaxWorkers-stats.Live)
		return Decision{
			Action: ActionScaleUp,
			Delta:  delta,
			Reason: fmt.Sprintf("%d queued tasks with %d live workers", stats.Queued, stats.Live),
		}
	}

	if stats.Live > 2*stats.Busy && stats.Live > stats.MinWorkers {
		delta := min(step, stats.Live-stats.MinWorkers)
		return Decision{
			Action: ActionScaleDown,
			Delta:  -delta,
			Reason: fmt.Sprintf("%d live workers with %d busy", stats.Live, stats.Busy),
		}
	}

	return Decision{
		Action: ActionNone,
		Reason: "no scaling needed",
	}
}

// manage runs the manager loop until the pool shuts down.
func (p *workerPool) manage() {
	defer close(p.managerDone)

	for {
		now := time.Now()
		next := p.schedule.Next(now)
		if next.IsZero() {
			// The schedule never fires again.
			<-p.stopCh
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-p.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		p.rebalance()
	}
}

// rebalance runs one manager tick.
func (p *workerPool) rebalance() {
	stats := p.Stats()
	if stats.ShuttingDown {
		return
	}

	decision := Evaluate(stats, p.config.ScaleStep)
	switch decision.Action {
	case ActionScaleUp:
		decision.Delta = p.grow(decision.Delta)
	case ActionScaleDown:
		decision.Delta = -p.shrink(-decision.Delta)
	}

	if decision.Delta != 0 {
		p.logger.Info("pool scaled",
			"action", decision.Action.String(),
			"delta", decision.Delta,
			"reason", decision.Reason)
		if p.config.OnScale != nil {
			p.config.OnScale(decision)
		}
	}

	p.report()
}

// grow spawns up to n workers and cancels any pending quit requests.
// It returns how many were spawned.
func (p *workerPool) grow(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return 0
	}
	p.pendingQuit = 0

	spawned := 0
	for spawned < n && p.spawnLocked() {
		spawned++
	}
	return spawned
}

// shrink asks up to n idle workers to retire, never aiming below
// MinWorkers. It returns how many quit requests were posted.
func (p *workerPool) shrink(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return 0
	}
	n = min(n, p.live-p.config.MinWorkers)
	if n <= 0 {
		return 0
	}

	p.pendingQuit = n
	for i := 0; i < n; i++ {
		p.notEmpty.Signal()
	}
	return n
}

// report hands the current snapshot to the configured reporters.
func (p *workerPool) report() {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ReportTimeout)
	defer cancel()

	if err := p.reporter.Report(ctx, p.Stats()); err != nil {
		p.logger.Warn("status report failed", "error", err)
	}
}
