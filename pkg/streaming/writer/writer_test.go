package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/elasticpool/internal/testutil"
	poolerrors "github.com/vnykmshr/elasticpool/pkg/common/errors"
	"github.com/vnykmshr/elasticpool/pkg/metrics"
)

func manualConfig(size int) Config {
	return Config{BufferSize: size, BlockOnFull: true, RetryDelay: time.Millisecond}
}

func TestNew(t *testing.T) {
	underlying := testutil.NewMockWriter()
	w := New(underlying)
	defer func() { _ = w.Close() }()

	testutil.AssertEqual(t, w.IsClosed(), false)
	testutil.AssertEqual(t, w.Buffered(), 0)
	testutil.AssertEqual(t, w.Capacity(), 64*1024)
}

func TestBasicWrite(t *testing.T) {
	underlying := testutil.NewMockWriter()
	w := NewWithConfig(underlying, manualConfig(1024))
	defer func() { _ = w.Close() }()

	n, err := w.Write([]byte("Hello, World!"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 13)
	testutil.AssertEqual(t, underlying.String(), "")
	testutil.AssertEqual(t, w.Buffered(), 13)

	testutil.AssertNoError(t, w.Flush(context.Background()))
	testutil.AssertEqual(t, underlying.String(), "Hello, World!")
	testutil.AssertEqual(t, w.Buffered(), 0)
}

func TestWriteStringAndFprintf(t *testing.T) {
	underlying := testutil.NewMockWriter()
	w := NewWithConfig(underlying, manualConfig(1024))

	_, err := w.WriteString("a ")
	testutil.AssertNoError(t, err)
	_, err = fmt.Fprintf(w, "%s : %s\n", "dir", "name")
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, w.Close())
	testutil.AssertEqual(t, underlying.String(), "a dir : name\n")
}

func TestFlushOnFullBuffer(t *testing.T) {
	underlying := testutil.NewMockWriter()
	w := NewWithConfig(underlying, manualConfig(8))
	defer func() { _ = w.Close() }()

	_, _ = w.WriteString("12345")
	testutil.AssertEqual(t, underlying.String(), "")

	// Does not fit: the first five bytes are delivered first.
	_, err := w.WriteString("6789")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, underlying.String(), "12345")
	testutil.AssertEqual(t, w.Buffered(), 4)
}

func TestOversizedWriteBypassesBuffer(t *testing.T) {
	underlying := testutil.NewMockWriter()
	w := NewWithConfig(underlying, manualConfig(4))
	defer func() { _ = w.Close() }()

	_, _ = w.WriteString("ab")
	n, err := w.WriteString("0123456789")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 10)
	testutil.AssertEqual(t, underlying.String(), "ab0123456789")
	testutil.AssertEqual(t, w.Buffered(), 0)
}

func TestNonBlockingBufferFull(t *testing.T) {
	full := testutil.NewCallbackTracker()
	underlying := testutil.NewMockWriter()
	w := NewWithConfig(underlying, Config{
		BufferSize:   4,
		OnBufferFull: func() { full.Mark() },
	})
	defer func() { _ = w.Close() }()

	_, err := w.WriteString("abcd")
	testutil.AssertNoError(t, err)

	_, err = w.WriteString("e")
	testutil.AssertErrorIs(t, err, ErrBufferFull)
	testutil.AssertErrorIs(t, err, poolerrors.ErrCapacityExceeded)
	full.AssertCallCount(t, 1)
	testutil.AssertEqual(t, w.Stats().BufferOverflows, int64(1))
}

func TestAutoFlush(t *testing.T) {
	underlying := testutil.NewMockWriter()
	w := NewWithConfig(underlying, Config{BufferSize: 1024, FlushInterval: 5 * time.Millisecond})
	defer func() { _ = w.Close() }()

	_, _ = w.WriteString("tick")
	testutil.AssertEventually(t, func() bool { return underlying.String() == "tick" })
}

func TestRetries(t *testing.T) {
	underlying := testutil.NewMockWriter()
	underlying.SetErrorOnNth(1)

	w := NewWithConfig(underlying, Config{BufferSize: 64, MaxRetries: 2, RetryDelay: time.Millisecond})
	_, _ = w.WriteString("retry me")
	testutil.AssertNoError(t, w.Flush(context.Background()))
	testutil.AssertEqual(t, underlying.String(), "retry me")
	testutil.AssertEqual(t, underlying.WriteCount(), 2)
	testutil.AssertNoError(t, w.Close())
}

func TestWriteErrors(t *testing.T) {
	sinkErr := errors.New("disk full")
	underlying := testutil.NewMockWriter()
	underlying.SetAlwaysError(sinkErr)

	errs := testutil.NewCallbackTracker()
	w := NewWithConfig(underlying, Config{
		BufferSize: 64,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnError:    func(err error) { errs.Mark(err) },
	})

	_, _ = w.WriteString("lost")
	err := w.Flush(context.Background())
	testutil.AssertErrorIs(t, err, sinkErr)
	errs.AssertCallCount(t, 1)
	testutil.AssertEqual(t, underlying.WriteCount(), 2)
	testutil.AssertEqual(t, w.Stats().ErrorCount, int64(1))
	testutil.AssertNoError(t, w.Close())
}

func TestFlushContextStopsRetries(t *testing.T) {
	underlying := testutil.NewMockWriter()
	underlying.SetAlwaysError(errors.New("unavailable"))
	w := NewWithConfig(underlying, Config{BufferSize: 64, MaxRetries: 100, RetryDelay: time.Hour})

	_, _ = w.WriteString("x")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := w.Flush(ctx)
	testutil.AssertErrorIs(t, err, context.DeadlineExceeded)

	canceled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	testutil.AssertErrorIs(t, w.Flush(canceled), context.Canceled)
	testutil.AssertNoError(t, w.Close())
}

func TestClose(t *testing.T) {
	underlying := testutil.NewMockWriter()
	w := New(underlying)

	_, _ = w.WriteString("pending")
	testutil.AssertNoError(t, w.Close())
	testutil.AssertEqual(t, w.IsClosed(), true)
	testutil.AssertEqual(t, underlying.String(), "pending")

	_, err := w.WriteString("late")
	testutil.AssertErrorIs(t, err, ErrWriterClosed)
	testutil.AssertErrorIs(t, err, poolerrors.ErrClosed)

	testutil.AssertNoError(t, w.Close())
}

func TestConcurrentLinesDoNotInterleave(t *testing.T) {
	underlying := testutil.NewMockWriter()
	w := NewWithConfig(underlying, Config{BufferSize: 256, BlockOnFull: true, FlushInterval: time.Millisecond})

	const goroutines, lines = 8, 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < lines; i++ {
				_, err := fmt.Fprintf(w, "goroutine-%d line-%03d\n", g, i)
				if err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	testutil.AssertNoError(t, w.Close())

	out := strings.Split(strings.TrimSuffix(underlying.String(), "\n"), "\n")
	testutil.AssertEqual(t, len(out), goroutines*lines)

	last := map[string]int{}
	for _, line := range out {
		var g, i int
		if _, err := fmt.Sscanf(line, "goroutine-%d line-%d", &g, &i); err != nil {
			t.Fatalf("garbled line %q", line)
		}
		key := fmt.Sprint(g)
		if prev, ok := last[key]; ok && i != prev+1 {
			t.Fatalf("goroutine %d out of order: %d after %d", g, i, prev)
		}
		last[key] = i
	}
}

func TestStatsAndOnFlush(t *testing.T) {
	var flushed atomic.Int64
	underlying := testutil.NewMockWriter()
	w := NewWithConfig(underlying, Config{
		BufferSize:  10,
		BlockOnFull: true,
		OnFlush: func(n int, _ time.Duration) {
			flushed.Add(int64(n))
		},
	})

	_, _ = w.WriteString("hello")
	stats := w.Stats()
	testutil.AssertEqual(t, stats.WriteCount, int64(1))
	testutil.AssertEqual(t, stats.BufferUtilization, 0.5)

	testutil.AssertNoError(t, w.Close())
	stats = w.Stats()
	testutil.AssertEqual(t, stats.BytesWritten, int64(5))
	testutil.AssertEqual(t, stats.FlushCount, int64(1))
	testutil.AssertEqual(t, flushed.Load(), int64(5))
	if stats.LastFlushTime.IsZero() {
		t.Error("expected LastFlushTime to be set")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	underlying := testutil.NewMockWriter()
	w := NewWithConfig(underlying, Config{Name: "results", BufferSize: 64})

	testutil.AssertEqual(t, w.MetricsEnabled(), false)
	testutil.AssertNoError(t, w.EnableMetrics(metrics.Config{Enabled: true, Registry: reg}))
	testutil.AssertEqual(t, w.MetricsEnabled(), true)

	_, _ = w.WriteString("abc")
	testutil.AssertNoError(t, w.Flush(context.Background()))

	r := w.registry.Load()
	testutil.AssertEqual(t, promtest.ToFloat64(r.WriterFlushes.WithLabelValues("results")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(r.WriterBytesWritten.WithLabelValues("results")), 3.0)

	w.DisableMetrics()
	_, _ = w.WriteString("def")
	testutil.AssertNoError(t, w.Close())
	testutil.AssertEqual(t, promtest.ToFloat64(r.WriterFlushes.WithLabelValues("results")), 1.0)
}

func BenchmarkWrite(b *testing.B) {
	w := NewWithConfig(testutil.NewMockWriter(), DefaultConfig())
	defer func() { _ = w.Close() }()
	line := []byte("Successfully matched the file: /var/log : syslog\n")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = w.Write(line)
		}
	})
}
