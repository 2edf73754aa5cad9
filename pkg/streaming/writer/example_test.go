package writer_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vnykmshr/elasticpool/pkg/streaming/writer"
)

// Example demonstrates basic buffered writer usage.
func Example() {
	var buf bytes.Buffer

	w := writer.New(&buf)

	_, _ = w.WriteString("Hello, ")
	_, _ = w.WriteString("buffered ")
	_, _ = w.WriteString("world!")

	// Close delivers whatever is still buffered
	_ = w.Close()

	fmt.Println(buf.String())
	// Output: Hello, buffered world!
}

// Example_concurrent shows many goroutines sharing one writer.
func Example_concurrent() {
	var buf bytes.Buffer
	w := writer.NewWithConfig(&buf, writer.Config{BufferSize: 4096, BlockOnFull: true})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fmt.Fprintf(w, "line from goroutine %d\n", i)
		}(i)
	}
	wg.Wait()
	_ = w.Close()

	fmt.Println(bytes.Count(buf.Bytes(), []byte("\n")))
	// Output: 4
}

// Example_nonBlocking shows load shedding when the buffer is full.
func Example_nonBlocking() {
	var buf bytes.Buffer
	w := writer.NewWithConfig(&buf, writer.Config{BufferSize: 8})

	_, err := w.WriteString("12345678")
	fmt.Println(err)

	_, err = w.WriteString("9")
	fmt.Println(errors.Is(err, writer.ErrBufferFull))

	_ = w.Flush(context.Background())
	fmt.Println(buf.String())
	_ = w.Close()

	// Output:
	// <nil>
	// true
	// 12345678
}

// Example_callbacks observes each flush.
func Example_callbacks() {
	var buf bytes.Buffer
	w := writer.NewWithConfig(&buf, writer.Config{
		BufferSize: 1024,
		OnFlush: func(n int, _ time.Duration) {
			fmt.Printf("flushed %d bytes\n", n)
		},
	})

	_, _ = w.WriteString("some data")
	_ = w.Flush(context.Background())
	_ = w.Close()

	// Output: flushed 9 bytes
}
