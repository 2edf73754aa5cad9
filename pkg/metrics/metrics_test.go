package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistryRegistersEveryVector(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.WorkerPoolLive.WithLabelValues("p").Set(1)
	r.WorkerPoolBusy.WithLabelValues("p").Set(1)
	r.WorkerPoolQueued.WithLabelValues("p").Set(1)
	r.WorkerPoolCapacity.WithLabelValues("p").Set(1)
	r.ScaleEvents.WithLabelValues("p", "up").Inc()
	r.TasksSubmitted.WithLabelValues("p").Inc()
	r.TasksRejected.WithLabelValues("p", "shutdown").Inc()
	r.TasksCompleted.WithLabelValues("p").Inc()
	r.TasksFailed.WithLabelValues("p").Inc()
	r.TasksPanicked.WithLabelValues("p").Inc()
	r.TaskExecutionDuration.WithLabelValues("p").Observe(0.1)
	r.TaskQueueWait.WithLabelValues("p").Observe(0.1)
	r.WriterFlushes.WithLabelValues("w").Inc()
	r.WriterBytesWritten.WithLabelValues("w").Add(10)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 14 {
		t.Errorf("gathered %d metric families, want 14", len(families))
	}
}

func TestNewRegistryWithConfigConstLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWithConfig(Config{
		Registry: reg,
		Labels:   prometheus.Labels{"instance": "a"},
	})

	r.TasksSubmitted.WithLabelValues("p").Add(3)

	if got := testutil.ToFloat64(r.TasksSubmitted.WithLabelValues("p")); got != 3 {
		t.Errorf("submitted = %v, want 3", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "elasticpool_tasks_submitted_total" {
			continue
		}
		found := false
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			if lp.GetName() == "instance" && lp.GetValue() == "a" {
				found = true
			}
		}
		if !found {
			t.Error("constant label instance=a missing")
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Enabled {
		t.Error("default config should be enabled")
	}
	if cfg.Namespace != DefaultNamespace {
		t.Errorf("Namespace = %q, want %q", cfg.Namespace, DefaultNamespace)
	}
}

func TestForConfig(t *testing.T) {
	if ForConfig(Config{Enabled: true}) != DefaultRegistry {
		t.Error("default settings should map to DefaultRegistry")
	}
	if ForConfig(DefaultConfig()) != DefaultRegistry {
		t.Error("DefaultConfig should map to DefaultRegistry")
	}

	reg := prometheus.NewRegistry()
	a := ForConfig(Config{Registry: reg})
	b := ForConfig(Config{Registry: reg, Namespace: DefaultNamespace})
	if a != b {
		t.Error("same registerer and namespace should share a Registry")
	}
	if a == DefaultRegistry {
		t.Error("custom registerer must not use DefaultRegistry")
	}

	labeled := ForConfig(Config{Registry: reg, Namespace: "other", Labels: prometheus.Labels{"b": "2", "a": "1"}})
	again := ForConfig(Config{Registry: reg, Namespace: "other", Labels: prometheus.Labels{"a": "1", "b": "2"}})
	if labeled != again {
		t.Error("label order should not matter")
	}

	a.TasksSubmitted.WithLabelValues("p").Inc()
	if got := testutil.ToFloat64(b.TasksSubmitted.WithLabelValues("p")); got != 1 {
		t.Errorf("shared registry submitted = %v, want 1", got)
	}
}
