/*
Package writer provides a buffered io.Writer that delivers data in the
background.

Writes land in an in-memory buffer and are delivered to the underlying writer
when the buffer fills, on a flush interval, on Flush, or on Close. Each Write
is delivered contiguously, so many goroutines may write whole lines to one
Writer without interleaving.

# Quick Start

	file, _ := os.Create("matches.txt")
	w := writer.New(file)
	defer w.Close()

	fmt.Fprintln(w, "Successfully matched the file: /tmp : a.txt")

# Configuration

	w := writer.NewWithConfig(dst, writer.Config{
		Name:          "search",
		BufferSize:    64 * 1024,
		FlushInterval: time.Second,
		BlockOnFull:   true,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
	})

With BlockOnFull the writing goroutine delivers the buffer itself before
appending. Without it, Write returns ErrBufferFull and calls OnBufferFull.

# Metrics

EnableMetrics counts flushes and delivered bytes per Config.Name in the
elasticpool_writer_* Prometheus series.
*/
package writer
