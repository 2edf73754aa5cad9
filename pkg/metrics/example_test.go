package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates basic metrics configuration.
func Example_basicUsage() {
	// Create a separate registry for this example
	registry := NewRegistry(prometheus.NewRegistry())

	registry.TasksSubmitted.WithLabelValues("search").Add(10)
	registry.TasksCompleted.WithLabelValues("search").Add(8)
	registry.TasksFailed.WithLabelValues("search").Add(2)
	registry.WorkerPoolLive.WithLabelValues("search").Set(4)

	fmt.Println(testutil.ToFloat64(registry.TasksSubmitted.WithLabelValues("search")))
	fmt.Println(testutil.ToFloat64(registry.WorkerPoolLive.WithLabelValues("search")))

	// Output:
	// 10
	// 4
}

// Example_customNamespace demonstrates overriding the namespace and adding
// constant labels.
func Example_customNamespace() {
	reg := prometheus.NewRegistry()
	registry := NewRegistryWithConfig(Config{
		Enabled:   true,
		Registry:  reg,
		Namespace: "myapp",
		Labels:    prometheus.Labels{"env": "test"},
	})

	registry.ScaleEvents.WithLabelValues("search", "up").Inc()

	families, _ := reg.Gather()
	for _, mf := range families {
		fmt.Println(mf.GetName())
	}

	// Output:
	// myapp_workerpool_scale_events_total
}
