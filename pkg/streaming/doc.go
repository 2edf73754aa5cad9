/*
Package streaming holds output helpers for concurrent producers.

  - writer: Buffered writer that many goroutines share, flushed on a
    size threshold, an interval and Close

Basic usage:

	out := writer.NewWithConfig(file, writer.Config{BufferSize: 64 * 1024})
	defer out.Close()

	fmt.Fprintf(out, "result %d\n", id)
*/
package streaming
