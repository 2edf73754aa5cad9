/*
Package elasticpool provides a self-scaling worker pool and the pieces
around it for running bursty background work.

Task Scheduling (pkg/scheduling):
  - workerpool: Bounded FIFO queue served by a pool that grows and shrinks between a minimum and maximum
  - statusboard: Publishes pool status to Redis so several instances can be watched together

Streaming (pkg/streaming):
  - writer: Buffered writer shared by concurrent tasks

Metrics (pkg/metrics):
  - Prometheus collectors for pools and writers

Example usage:

	import (
		"github.com/vnykmshr/elasticpool/pkg/scheduling/workerpool"
	)

	pool, _ := workerpool.New(30, 3, 100) // 3 to 30 workers, queue 100
	defer pool.DrainAndShutdown()

	pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error {
		return process(ctx)
	}))

The elasticpool command (cmd/elasticpool) runs a parallel file search and a
load demo on the pool.
*/
package elasticpool
