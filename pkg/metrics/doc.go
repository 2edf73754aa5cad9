// Package metrics provides Prometheus instrumentation for elasticpool components.
//
// # Overview
//
// The package exposes a Registry of metric vectors covering:
//   - Worker pool state (live, busy, queued, capacity, scaling decisions)
//   - Task outcomes (submitted, rejected, completed, failed, panicked)
//   - Task timings (execution duration, time spent queued)
//   - Async output writers (flushes, bytes written)
//
// # Quick Start
//
// Enable metrics by using the metrics-enabled constructors:
//
//	pool, err := workerpool.NewWithConfigAndMetrics(workerpool.Config{
//		MaxWorkers:    8,
//		MinWorkers:    2,
//		QueueCapacity: 100,
//	}, "search", metrics.DefaultConfig())
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":9090", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation, which is also what tests do
// to avoid duplicate registration panics:
//
//	registry := prometheus.NewRegistry()
//	config := metrics.Config{
//		Enabled:  true,
//		Registry: registry,
//	}
//
// # Available Metrics
//
//   - elasticpool_workerpool_live_workers
//   - elasticpool_workerpool_busy_workers
//   - elasticpool_workerpool_queued_tasks
//   - elasticpool_workerpool_queue_capacity
//   - elasticpool_workerpool_scale_events_total{direction="scale_up"|"scale_down"}
//   - elasticpool_tasks_submitted_total
//   - elasticpool_tasks_rejected_total{reason="shutdown"|"queue_full"|"nil_task"|"canceled"}
//   - elasticpool_tasks_completed_total
//   - elasticpool_tasks_failed_total
//   - elasticpool_tasks_panicked_total
//   - elasticpool_tasks_duration_seconds
//   - elasticpool_tasks_queue_wait_seconds
//   - elasticpool_writer_flushes_total
//   - elasticpool_writer_bytes_written_total
//
// Every pool metric carries a pool_name label; writer metrics carry writer_name.
// Gauges are refreshed on every manager tick and after each submission.
package metrics
