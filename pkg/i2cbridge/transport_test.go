// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

package i2cbridge

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// chanStream is an in-memory byte stream fed through a channel, standing
// in for a serial port.
type chanStream struct {
	incoming chan []byte
	wrote    bytes.Buffer
	closed   chan struct{}
}

func newChanStream() *chanStream {
	return &chanStream{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (s *chanStream) Read(p []byte) (int, error) {
	select {
	case data, ok := <-s.incoming:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, data), nil
	case <-s.closed:
		return 0, io.EOF
	}
}

func (s *chanStream) Write(p []byte) (int, error) {
	return s.wrote.Write(p)
}

func (s *chanStream) Close() error {
	close(s.closed)
	return nil
}

func TestStreamTransport_ReadExactAccumulates(t *testing.T) {
	s := newChanStream()
	tr := NewStreamTransport(s)
	defer tr.Close()

	// Bytes arrive in two pieces; ReadExact must wait for both.
	s.incoming <- []byte{0x01, 0x02}
	s.incoming <- []byte{0x03}

	got, err := tr.ReadExact(3, time.Second)
	if err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("got % 02x", got)
	}
}

func TestStreamTransport_ReadExactTimeout(t *testing.T) {
	s := newChanStream()
	tr := NewStreamTransport(s)
	defer tr.Close()

	s.incoming <- []byte{0x01}
	_, err := tr.ReadExact(2, 60*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestStreamTransport_ReadAvailableEmptyAfterTimeout(t *testing.T) {
	s := newChanStream()
	tr := NewStreamTransport(s)
	defer tr.Close()

	got, err := tr.ReadAvailable(40 * time.Millisecond)
	if err != nil {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got % 02x, want nothing", got)
	}
}

func TestStreamTransport_FlushDiscards(t *testing.T) {
	s := newChanStream()
	tr := NewStreamTransport(s)
	defer tr.Close()

	s.incoming <- []byte{0xaa, 0xbb}
	// Give the reader goroutine a moment to accumulate.
	time.Sleep(40 * time.Millisecond)
	if err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got, err := tr.ReadAvailable(40 * time.Millisecond)
	if err != nil {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("flushed bytes still readable: % 02x", got)
	}
}

func TestStreamTransport_WriteReachesStream(t *testing.T) {
	s := newChanStream()
	tr := NewStreamTransport(s)
	defer tr.Close()

	if err := tr.Write([]byte{'?', '@'}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(s.wrote.Bytes(), []byte{'?', '@'}) {
		t.Errorf("stream saw % 02x", s.wrote.Bytes())
	}
}

func TestStreamTransport_CloseIsIdempotent(t *testing.T) {
	s := newChanStream()
	tr := NewStreamTransport(s)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := tr.Write([]byte{0x00}); !errors.Is(err, ErrPort) {
		t.Errorf("write after close: err = %v, want ErrPort", err)
	}
}
