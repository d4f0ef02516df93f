// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

package i2cbridge

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tunnel drives one I2C bridge adapter over one Transport session.
// Every protocol operation is a sequential request/response exchange on
// the wire, so a mutex serializes all public methods; sharing a Tunnel
// across goroutines is safe but commands never interleave.
type Tunnel struct {
	mu      sync.Mutex
	tr      Transport
	port    string
	state   ConnState
	timeout time.Duration

	// Logf, when set, receives informational protocol messages. The
	// tunnel never logs errors through it; those are returned.
	Logf func(format string, args ...interface{})
}

// NewTunnel wraps an open transport session. The tunnel takes exclusive
// ownership; the caller must not use the transport directly afterwards.
func NewTunnel(tr Transport, port string) *Tunnel {
	return &Tunnel{
		tr:      tr,
		port:    port,
		state:   StateDisconnected,
		timeout: DefaultTimeout,
	}
}

// SetTimeout overrides the per-read timeout used by all operations.
func (t *Tunnel) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// State reports the current connection state.
func (t *Tunnel) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tunnel) logf(format string, args ...interface{}) {
	if t.Logf != nil {
		t.Logf(format, args...)
	}
}

// Connect runs the handshake: resynchronize the adapter's command
// parser, verify the link with an echo test, query status, and reset the
// bus if requested or if the lines are stuck. Returns the final status.
func (t *Tunnel) Connect(reset bool) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateConnecting

	fail := func(err error) (Status, error) {
		t.state = StateDisconnected
		return Status{}, err
	}

	// One sync byte lets an idle adapter settle, then 64 more flush any
	// partially received command out of its parser.
	if err := t.tr.Write([]byte{cmdSync}); err != nil {
		return fail(err)
	}
	time.Sleep(syncSettleDelay)
	sync := make([]byte, syncFlushCount)
	for i := range sync {
		sync[i] = cmdSync
	}
	if err := t.tr.Write(sync); err != nil {
		return fail(err)
	}
	if err := t.tr.Flush(); err != nil {
		return fail(err)
	}

	for _, probe := range echoProbes {
		if err := t.echo(probe); err != nil {
			return fail(err)
		}
	}

	st, err := t.getStatus()
	if err != nil {
		return fail(err)
	}
	if reset || !st.BusFree() {
		if err := t.busReset(); err != nil {
			return fail(err)
		}
		if st, err = t.getStatus(); err != nil {
			return fail(err)
		}
	}

	t.state = StateConnected
	t.logf("connected to %s (%s, serial %s)", t.port, st.Model, st.Serial)
	return st, nil
}

// Disconnect closes the transport session. The tunnel cannot be reused;
// reconnecting requires a new session and a new tunnel.
func (t *Tunnel) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateDisconnected
	return t.tr.Close()
}

// echo writes one probe character and requires the exact single-byte
// echo back. A wrong byte or a multi-byte response is a handshake
// integrity failure.
func (t *Tunnel) echo(c byte) error {
	if err := t.tr.Write([]byte{cmdEcho, c}); err != nil {
		return err
	}
	resp, err := t.tr.ReadAvailable(t.timeout)
	if err != nil {
		return err
	}
	if len(resp) != 1 || resp[0] != c {
		return fmt.Errorf("%w: sent %02x, got % 02x", ErrEchoMismatch, c, resp)
	}
	return nil
}

// Status queries and parses the adapter's status report.
func (t *Tunnel) Status() (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getStatus()
}

func (t *Tunnel) getStatus() (Status, error) {
	if err := t.tr.Write([]byte{cmdStatus}); err != nil {
		return Status{}, err
	}

	// The report arrives as an ASCII line; collect until the closing
	// bracket shows up or the timeout budget runs out.
	deadline := time.Now().Add(t.timeout)
	var line []byte
	for {
		chunk, err := t.tr.ReadAvailable(t.timeout)
		if err != nil {
			return Status{}, err
		}
		line = append(line, chunk...)
		if bytes.IndexByte(line, ']') >= 0 {
			break
		}
		if time.Now().After(deadline) {
			return Status{}, fmt.Errorf("%w: incomplete status report", ErrTimeout)
		}
	}

	st, err := parseStatus(line)
	if err != nil {
		return Status{}, err
	}
	st.Port = t.port
	return st, nil
}

// Reset reboots the adapter. The settle sleep gives the hardware time to
// reinitialize before the next command.
func (t *Tunnel) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.tr.Write([]byte{cmdReset}); err != nil {
		return err
	}
	time.Sleep(resetSettleDelay)
	return nil
}

// SetPullups configures the pullup resistor mask. Valid masks are 0..63;
// anything else is rejected without touching the wire.
func (t *Tunnel) SetPullups(mask int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if mask < 0 || mask > maxPullupMask {
		return fmt.Errorf("%w: pullup mask %d not in [0,%d]", ErrOutOfRange, mask, maxPullupMask)
	}
	return t.tr.Write([]byte{cmdPullups, byte(mask)})
}

// SetSpeed selects the bus clock in kHz. Only 100 and 400 exist on the
// adapter; anything else is rejected without touching the wire.
func (t *Tunnel) SetSpeed(khz int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setSpeed(khz)
}

func (t *Tunnel) setSpeed(khz int) error {
	var op byte
	switch khz {
	case 100:
		op = cmdSpeed100
	case 400:
		op = cmdSpeed400
	default:
		return fmt.Errorf("%w: bus speed %d kHz (want 100 or 400)", ErrUnsupportedValue, khz)
	}
	return t.tr.Write([]byte{op})
}

// BusReset clocks the bus free and checks the adapter's verdict. A
// response other than the idle sentinel means a device is still holding
// a line. On success the bus clock is back at its power-on 100 kHz.
func (t *Tunnel) BusReset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busReset()
}

func (t *Tunnel) busReset() error {
	if err := t.tr.Write([]byte{cmdBusReset}); err != nil {
		return err
	}
	resp, err := t.tr.ReadExact(1, t.timeout)
	if err != nil {
		return err
	}
	if resp[0] != busResetOK {
		return fmt.Errorf("%w: bus reset answered %02x", ErrBusBusy, resp[0])
	}
	if err := t.setSpeed(100); err != nil {
		return err
	}
	t.logf("bus reset ok, speed back to 100 kHz")
	return nil
}

// Scan probes addresses 8..119 and returns those that acknowledged, in
// ascending order.
func (t *Tunnel) Scan() ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.tr.Write([]byte{cmdScan}); err != nil {
		return nil, err
	}
	bitmap, err := t.tr.ReadExact(scanSpan, t.timeout)
	if err != nil {
		return nil, err
	}
	var addrs []int
	for i, b := range bitmap {
		if b == '1' {
			addrs = append(addrs, ScanFirst+i)
		}
	}
	sort.Ints(addrs)
	return addrs, nil
}

// FormatScanTable renders a scan result as a hex table, eight candidate
// addresses per row, absent addresses shown as "--".
func FormatScanTable(addrs []int) string {
	present := make(map[int]bool, len(addrs))
	for _, a := range addrs {
		present[a] = true
	}
	var b strings.Builder
	for a := ScanFirst; a <= ScanLast; a++ {
		if present[a] {
			fmt.Fprintf(&b, "%02x ", a)
		} else {
			b.WriteString("-- ")
		}
		if (a-ScanFirst)%8 == 7 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Start issues an I2C START addressed to addr, direction read or write.
// The returned bool is the device's acknowledgment.
func (t *Tunnel) Start(addr byte, read bool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.start(addr, read)
}

func (t *Tunnel) start(addr byte, read bool) (bool, error) {
	dir := byte(0)
	if read {
		dir = 1
	}
	if err := t.tr.Write([]byte{cmdStart, addr<<1 | dir}); err != nil {
		return false, err
	}
	return t.ack()
}

// Stop issues an I2C STOP. No response is expected.
func (t *Tunnel) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop()
}

func (t *Tunnel) stop() error {
	return t.tr.Write([]byte{cmdStop})
}

// WriteBytes sends data to the addressed device in chunks of at most 64
// bytes, each prefixed with its length-encoded control byte and
// acknowledged individually. On the first NACKed chunk no further chunks
// are sent and false is returned.
func (t *Tunnel) WriteBytes(data []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeBytes(data)
}

func (t *Tunnel) writeBytes(data []byte) (bool, error) {
	ack := true
	for len(data) > 0 {
		n := len(data)
		if n > MaxChunkSize {
			n = MaxChunkSize
		}
		frame := make([]byte, 0, n+1)
		frame = append(frame, byte(cmdWriteMask|(n-1)))
		frame = append(frame, data[:n]...)
		if err := t.tr.Write(frame); err != nil {
			return false, err
		}
		var err error
		if ack, err = t.ack(); err != nil {
			return false, err
		}
		if !ack {
			return false, nil
		}
		data = data[n:]
	}
	return ack, nil
}

// ReadBytes clocks n bytes in from the addressed device, requesting
// chunks of at most 64 bytes and concatenating the exact-length
// responses.
func (t *Tunnel) ReadBytes(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readBytes(n)
}

func (t *Tunnel) readBytes(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for n > 0 {
		c := n
		if c > MaxChunkSize {
			c = MaxChunkSize
		}
		if err := t.tr.Write([]byte{byte(cmdReadMask | (c - 1))}); err != nil {
			return nil, err
		}
		chunk, err := t.tr.ReadExact(c, t.timeout)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		n -= c
	}
	return out, nil
}

// Ack reads a single acknowledgment byte; its low bit is the result.
func (t *Tunnel) Ack() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ack()
}

func (t *Tunnel) ack() (bool, error) {
	resp, err := t.tr.ReadAvailable(t.timeout)
	if err != nil {
		return false, err
	}
	if len(resp) != 1 {
		return false, fmt.Errorf("%w: ack wanted 1 byte, got %d", ErrTimeout, len(resp))
	}
	return resp[0]&1 == 1, nil
}

// RegWrite writes data to a device register: START, register byte, data
// bytes, STOP. The STOP is always issued, even after a NACK, so the bus
// is left consistent. The returned bool is the final acknowledgment.
func (t *Tunnel) RegWrite(addr, reg byte, data ...byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ack, err := t.start(addr, false)
	if err != nil {
		t.stop()
		return false, err
	}
	if ack {
		if ack, err = t.writeBytes([]byte{reg}); err != nil {
			t.stop()
			return false, err
		}
	}
	if ack && len(data) > 0 {
		if ack, err = t.writeBytes(data); err != nil {
			t.stop()
			return false, err
		}
	}
	if err := t.stop(); err != nil {
		return false, err
	}
	return ack, nil
}

// RegRead reads n bytes starting at a device register using the
// adapter's register-read command, then clocks the data in chunked.
func (t *Tunnel) RegRead(addr, reg byte, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.tr.Write([]byte{cmdRegRead, addr, reg, byte(n)}); err != nil {
		return nil, err
	}
	return t.readBytes(n)
}
