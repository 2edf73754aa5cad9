package testutil

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrSimulatedWrite is returned by a MockWriter told to fail.
var ErrSimulatedWrite = errors.New("simulated write failure")

// MockWriter is an io.Writer sink for output produced by many workers. It
// can be made slow or failing to exercise retries and back-pressure.
type MockWriter struct {
	mu     sync.Mutex
	data   bytes.Buffer
	calls  int
	delay  time.Duration
	failOn int
	err    error
}

// NewMockWriter creates an empty MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write records p unless a failure was configured for this call.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.calls++
	if mw.delay > 0 {
		time.Sleep(mw.delay)
	}
	switch {
	case mw.err != nil:
		return 0, mw.err
	case mw.failOn > 0 && mw.calls == mw.failOn:
		return 0, ErrSimulatedWrite
	}
	return mw.data.Write(p)
}

// String returns everything written so far.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.data.String()
}

// Lines returns the written output split into lines, without the trailing
// empty line.
func (mw *MockWriter) Lines() []string {
	s := strings.TrimSuffix(mw.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// WriteCount returns the number of Write calls, failed ones included.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.calls
}

// SetWriteDelay makes every Write sleep for delay.
func (mw *MockWriter) SetWriteDelay(delay time.Duration) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.delay = delay
}

// SetErrorOnNth makes the nth Write call fail with ErrSimulatedWrite.
func (mw *MockWriter) SetErrorOnNth(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.failOn = n
}

// SetAlwaysError makes every Write fail with err. A nil err clears it.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.err = err
}
