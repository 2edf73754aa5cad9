package writer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	poolerrors "github.com/vnykmshr/elasticpool/pkg/common/errors"
	"github.com/vnykmshr/elasticpool/pkg/metrics"
)

var (
	// ErrWriterClosed is returned when attempting to write to a closed writer.
	ErrWriterClosed = fmt.Errorf("writer is closed: %w", poolerrors.ErrClosed)

	// ErrBufferFull is returned by a non-blocking writer whose buffer cannot
	// take the write.
	ErrBufferFull = fmt.Errorf("buffer is full: %w", poolerrors.ErrCapacityExceeded)
)

// Stats holds statistics about a Writer.
type Stats struct {
	// BytesWritten is the total number of bytes delivered to the destination.
	BytesWritten int64

	// WriteCount is the total number of accepted Write calls.
	WriteCount int64

	// FlushCount is the total number of flushes that wrote data.
	FlushCount int64

	// ErrorCount is the total number of failed flushes.
	ErrorCount int64

	// BufferOverflows is the number of writes rejected with ErrBufferFull.
	BufferOverflows int64

	// LastFlushTime is when data was last delivered.
	LastFlushTime time.Time

	// BufferUtilization is the current buffer utilization (0.0 to 1.0).
	BufferUtilization float64
}

// Config holds configuration options for a Writer.
type Config struct {
	// Name labels the writer's metrics.
	Name string

	// BufferSize is the size of the internal buffer in bytes.
	// Default: 64KB
	BufferSize int

	// FlushInterval is how often to flush the buffer automatically.
	// Zero disables automatic flushing.
	FlushInterval time.Duration

	// BlockOnFull determines behavior when the buffer is full.
	// If true, the writing goroutine flushes and then retries.
	// If false, Write returns ErrBufferFull immediately.
	BlockOnFull bool

	// MaxRetries is the number of times to retry a failed flush.
	MaxRetries int

	// RetryDelay is the delay between retries.
	RetryDelay time.Duration

	// OnError is called when a flush fails after all retries.
	OnError func(error)

	// OnFlush is called after each flush that wrote data.
	OnFlush func(bytesWritten int, duration time.Duration)

	// OnBufferFull is called when a write is rejected with ErrBufferFull.
	OnBufferFull func()
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Name:          "default",
		BufferSize:    64 * 1024,
		FlushInterval: time.Second,
		BlockOnFull:   true,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// Writer buffers writes in memory and delivers them to an underlying
// io.Writer, either when the buffer fills, on an interval, or on Flush.
// Each Write is delivered contiguously, so concurrent goroutines writing
// whole lines never interleave. Data is delivered in the order it was
// buffered.
type Writer struct {
	dst    io.Writer
	config Config

	// flushMu serializes delivery to dst. It is taken before mu.
	flushMu sync.Mutex

	mu     sync.Mutex
	buf    []byte
	spare  []byte
	closed bool
	stats  Stats

	registry atomic.Pointer[metrics.Registry]
	enabled  atomic.Bool

	stopCh chan struct{}
	done   chan struct{}
}

var _ metrics.Instrumentable = (*Writer)(nil)

// New creates a Writer with default configuration.
func New(w io.Writer) *Writer {
	return NewWithConfig(w, DefaultConfig())
}

// NewWithConfig creates a Writer with the specified configuration.
func NewWithConfig(w io.Writer, config Config) *Writer {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}

	aw := &Writer{
		dst:    w,
		config: config,
		buf:    make([]byte, 0, config.BufferSize),
		spare:  make([]byte, 0, config.BufferSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		go aw.flushLoop()
	} else {
		close(aw.done)
	}
	return aw
}

// Write implements io.Writer. A write larger than the whole buffer bypasses
// it once everything buffered before it has been delivered.
func (aw *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		aw.mu.Lock()
		if aw.closed {
			aw.mu.Unlock()
			return 0, ErrWriterClosed
		}
		if len(aw.buf)+len(p) <= cap(aw.buf) {
			aw.buf = append(aw.buf, p...)
			aw.stats.WriteCount++
			aw.mu.Unlock()
			return len(p), nil
		}
		if !aw.config.BlockOnFull {
			aw.stats.BufferOverflows++
			aw.mu.Unlock()
			if aw.config.OnBufferFull != nil {
				aw.config.OnBufferFull()
			}
			return 0, ErrBufferFull
		}
		aw.mu.Unlock()

		if len(p) > aw.config.BufferSize {
			return aw.writeThrough(p)
		}
		if err := aw.Flush(context.Background()); err != nil {
			return 0, err
		}
	}
}

// WriteString writes s.
func (aw *Writer) WriteString(s string) (int, error) {
	return aw.Write([]byte(s))
}

// writeThrough delivers p directly after draining the buffer.
func (aw *Writer) writeThrough(p []byte) (int, error) {
	aw.flushMu.Lock()
	defer aw.flushMu.Unlock()

	if err := aw.flushLocked(context.Background()); err != nil {
		return 0, err
	}

	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return 0, ErrWriterClosed
	}
	aw.stats.WriteCount++
	aw.mu.Unlock()

	n, err := aw.deliver(context.Background(), p)
	return n, err
}

// Flush delivers everything buffered so far. Retries stop early if ctx ends.
func (aw *Writer) Flush(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	aw.flushMu.Lock()
	defer aw.flushMu.Unlock()
	return aw.flushLocked(ctx)
}

// flushLocked swaps out the buffer and delivers it. aw.flushMu must be held.
func (aw *Writer) flushLocked(ctx context.Context) error {
	aw.mu.Lock()
	data := aw.buf
	aw.buf = aw.spare[:0]
	aw.mu.Unlock()

	var err error
	if len(data) > 0 {
		_, err = aw.deliver(ctx, data)
	}

	aw.mu.Lock()
	aw.spare = data[:0]
	aw.mu.Unlock()
	return err
}

// deliver writes data to dst with retries, recording stats, metrics and hooks.
// aw.flushMu must be held.
func (aw *Writer) deliver(ctx context.Context, data []byte) (int, error) {
	start := time.Now()
	n, err := aw.writeWithRetries(ctx, data)
	duration := time.Since(start)

	aw.mu.Lock()
	aw.stats.BytesWritten += int64(n)
	if err != nil {
		aw.stats.ErrorCount++
	}
	if n > 0 {
		aw.stats.FlushCount++
		aw.stats.LastFlushTime = time.Now()
	}
	aw.mu.Unlock()

	if n > 0 {
		aw.recordFlush(n)
		if aw.config.OnFlush != nil {
			aw.config.OnFlush(n, duration)
		}
	}
	if err != nil && aw.config.OnError != nil {
		aw.config.OnError(err)
	}
	return n, err
}

// writeWithRetries writes data with retry logic.
func (aw *Writer) writeWithRetries(ctx context.Context, data []byte) (int, error) {
	var totalWritten int
	var lastErr error

	for attempt := 0; attempt <= aw.config.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(aw.config.RetryDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return totalWritten, ctx.Err()
			}
		}

		written, err := aw.dst.Write(data[totalWritten:])
		totalWritten += written

		if err != nil {
			lastErr = err
			continue
		}
		if totalWritten >= len(data) {
			return totalWritten, nil
		}
		lastErr = io.ErrShortWrite
	}

	return totalWritten, lastErr
}

// flushLoop automatically flushes the buffer at regular intervals.
func (aw *Writer) flushLoop() {
	defer close(aw.done)

	ticker := time.NewTicker(aw.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = aw.Flush(context.Background()) // reported through OnError
		case <-aw.stopCh:
			return
		}
	}
}

// Close stops the flush loop and delivers any remaining data. Further writes
// fail with ErrWriterClosed. Close is idempotent.
func (aw *Writer) Close() error {
	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return nil
	}
	aw.closed = true
	aw.mu.Unlock()

	close(aw.stopCh)
	<-aw.done

	aw.flushMu.Lock()
	defer aw.flushMu.Unlock()
	return aw.flushLocked(context.Background())
}

// Stats returns a snapshot of the writer's statistics.
func (aw *Writer) Stats() Stats {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	stats := aw.stats
	if cap(aw.buf) > 0 {
		stats.BufferUtilization = float64(len(aw.buf)) / float64(cap(aw.buf))
	}
	return stats
}

// IsClosed reports whether Close has been called.
func (aw *Writer) IsClosed() bool {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.closed
}

// Buffered returns the number of bytes waiting to be delivered.
func (aw *Writer) Buffered() int {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return len(aw.buf)
}

// Capacity returns the buffer capacity in bytes.
func (aw *Writer) Capacity() int {
	return aw.config.BufferSize
}

func (aw *Writer) recordFlush(n int) {
	if !aw.enabled.Load() {
		return
	}
	r := aw.registry.Load()
	r.WriterFlushes.WithLabelValues(aw.config.Name).Inc()
	r.WriterBytesWritten.WithLabelValues(aw.config.Name).Add(float64(n))
}

// EnableMetrics starts counting flushes and delivered bytes.
func (aw *Writer) EnableMetrics(config metrics.Config) error {
	aw.registry.Store(metrics.ForConfig(config))
	aw.enabled.Store(config.Enabled)
	return nil
}

// DisableMetrics stops metrics collection.
func (aw *Writer) DisableMetrics() {
	aw.enabled.Store(false)
}

// MetricsEnabled returns true if metrics are currently enabled.
func (aw *Writer) MetricsEnabled() bool {
	return aw.enabled.Load()
}
