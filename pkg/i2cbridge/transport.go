// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

package i2cbridge

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Transport is the byte-level session the tunnel runs over. All reads
// drain an internal accumulator fed by the underlying stream; they never
// index into it randomly.
type Transport interface {
	// Write sends the bytes, fully drained before returning success.
	Write(p []byte) error

	// ReadExact collects exactly n bytes, polling the accumulator until
	// the timeout elapses. Fails with ErrTimeout otherwise.
	ReadExact(n int, timeout time.Duration) ([]byte, error)

	// ReadAvailable returns whatever has accumulated since the last
	// read, waiting up to timeout for the first bytes. It does not
	// guarantee any particular length; callers must validate.
	ReadAvailable(timeout time.Duration) ([]byte, error)

	// Flush discards any unread buffered input.
	Flush() error

	// Close tears down the session. A new session is required to
	// reconnect.
	Close() error
}

// StreamTransport adapts any byte stream (serial port, WebSocket bridge)
// to the Transport contract. A background goroutine reads the stream
// into the accumulator; the accessors poll it at a fixed short interval.
type StreamTransport struct {
	stream io.ReadWriteCloser

	mu     sync.Mutex
	acc    []byte
	rdErr  error
	closed bool
	done   chan struct{}
}

// NewStreamTransport starts the reader goroutine and returns the
// transport. The caller owns the session until Close.
func NewStreamTransport(stream io.ReadWriteCloser) *StreamTransport {
	t := &StreamTransport{
		stream: stream,
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *StreamTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, 256)
	for {
		n, err := t.stream.Read(buf)
		t.mu.Lock()
		if n > 0 {
			t.acc = append(t.acc, buf[:n]...)
		}
		if err != nil {
			if !t.closed {
				t.rdErr = err
			}
			t.mu.Unlock()
			return
		}
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
	}
}

// Write sends p on the underlying stream, retrying short writes until
// the buffer is fully drained.
func (t *StreamTransport) Write(p []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("%w: transport closed", ErrPort)
	}
	t.mu.Unlock()

	for len(p) > 0 {
		n, err := t.stream.Write(p)
		if err != nil {
			return fmt.Errorf("%w: write failed: %v", ErrPort, err)
		}
		p = p[n:]
	}
	return nil
}

// take removes up to max accumulated bytes (all of them if max < 0).
func (t *StreamTransport) take(max int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.acc)
	if max >= 0 && n > max {
		n = max
	}
	if n == 0 {
		if t.rdErr != nil {
			return nil, fmt.Errorf("%w: stream read: %v", ErrPort, t.rdErr)
		}
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, t.acc)
	t.acc = t.acc[n:]
	return out, nil
}

// ReadExact polls every 20ms until n bytes have accumulated or the
// timeout elapses.
func (t *StreamTransport) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	out := make([]byte, 0, n)
	for {
		chunk, err := t.take(n - len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if len(out) >= n {
			return out, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: wanted %d bytes, got %d", ErrTimeout, n, len(out))
		}
		time.Sleep(pollInterval)
	}
}

// ReadAvailable waits up to timeout for data, then returns everything
// accumulated. An empty result after the timeout is not an error.
func (t *StreamTransport) ReadAvailable(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		chunk, err := t.take(-1)
		if err != nil {
			return nil, err
		}
		if len(chunk) > 0 {
			return chunk, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(pollInterval)
	}
}

// Flush discards any unread buffered input.
func (t *StreamTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acc = t.acc[:0]
	return nil
}

// Close stops the reader and closes the underlying stream.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.stream.Close()
	<-t.done
	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrPort, err)
	}
	return nil
}
