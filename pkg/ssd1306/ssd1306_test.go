// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

package ssd1306

import (
	"bytes"
	"errors"
	"testing"

	"github.com/magnetar-labs/lodestone/pkg/i2cbridge"
)

// ============================================================
// Fake bus
// ============================================================

type busWrite struct {
	addr, reg byte
	data      []byte
}

type fakeBus struct {
	writes []busWrite
	nack   bool
}

func (b *fakeBus) RegWrite(addr, reg byte, data ...byte) (bool, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	b.writes = append(b.writes, busWrite{addr, reg, cp})
	return !b.nack, nil
}

// commands filters the recorded writes down to command transactions.
func (b *fakeBus) commands() [][]byte {
	var out [][]byte
	for _, w := range b.writes {
		if w.reg == ctrlCommand {
			out = append(out, w.data)
		}
	}
	return out
}

func newTestDevice(t *testing.T, bus Bus, opts Opts) *Device {
	t.Helper()
	d, err := New(bus, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

// ============================================================
// Framebuffer addressing
// ============================================================

func TestFramebuffer_PixelRoundTrip(t *testing.T) {
	fb, err := NewFramebuffer(32, 16)
	if err != nil {
		t.Fatalf("NewFramebuffer: %v", err)
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			fb.SetPixel(x, y, true)
			if !fb.GetPixel(x, y) {
				t.Fatalf("pixel (%d,%d) not set", x, y)
			}
			fb.SetPixel(x, y, false)
			if fb.GetPixel(x, y) {
				t.Fatalf("pixel (%d,%d) not cleared", x, y)
			}
		}
	}
}

func TestFramebuffer_OutOfBounds(t *testing.T) {
	fb, _ := NewFramebuffer(8, 8)
	for _, p := range [][2]int{{-1, 0}, {0, -1}, {8, 0}, {0, 8}, {100, 100}} {
		fb.SetPixel(p[0], p[1], true)
		if fb.GetPixel(p[0], p[1]) {
			t.Errorf("out-of-bounds get (%d,%d) = true", p[0], p[1])
		}
	}
	for _, b := range fb.Bytes() {
		if b != 0 {
			t.Fatal("out-of-bounds set mutated the buffer")
		}
	}
}

func TestFramebuffer_PageLayout(t *testing.T) {
	fb, _ := NewFramebuffer(128, 64)
	// Pixel (3, 10): page 1, bit 2 of byte 3+1*128.
	fb.SetPixel(3, 10, true)
	if got := fb.Bytes()[3+128]; got != 1<<2 {
		t.Errorf("byte = %02x, want %02x", got, 1<<2)
	}
	if fb.Pages() != 8 || len(fb.Bytes()) != 128*8 {
		t.Errorf("geometry: pages=%d len=%d", fb.Pages(), len(fb.Bytes()))
	}
}

func TestNewFramebuffer_RejectsBadGeometry(t *testing.T) {
	for _, g := range [][2]int{{0, 8}, {8, 0}, {8, 12}, {-8, 8}} {
		if _, err := NewFramebuffer(g[0], g[1]); err == nil {
			t.Errorf("geometry %dx%d accepted", g[0], g[1])
		}
	}
}

// ============================================================
// Drawing primitives
// ============================================================

func countPixels(fb *Framebuffer) int {
	n := 0
	for y := 0; y < fb.Height(); y++ {
		for x := 0; x < fb.Width(); x++ {
			if fb.GetPixel(x, y) {
				n++
			}
		}
	}
	return n
}

func TestLine_DegenerateCases(t *testing.T) {
	fb, _ := NewFramebuffer(16, 16)

	fb.Line(2, 3, 2, 3, true) // single point
	if !fb.GetPixel(2, 3) || countPixels(fb) != 1 {
		t.Error("point line wrong")
	}

	fb.Clear()
	fb.Line(0, 5, 9, 5, true) // horizontal
	for x := 0; x < 10; x++ {
		if !fb.GetPixel(x, 5) {
			t.Fatalf("horizontal line missing (%d,5)", x)
		}
	}
	if countPixels(fb) != 10 {
		t.Errorf("horizontal line drew %d pixels", countPixels(fb))
	}

	fb.Clear()
	fb.Line(7, 9, 7, 0, true) // vertical, reversed endpoints
	for y := 0; y < 10; y++ {
		if !fb.GetPixel(7, y) {
			t.Fatalf("vertical line missing (7,%d)", y)
		}
	}
}

func TestLine_Diagonals(t *testing.T) {
	fb, _ := NewFramebuffer(16, 16)
	fb.Line(0, 0, 9, 9, true)
	for i := 0; i < 10; i++ {
		if !fb.GetPixel(i, i) {
			t.Fatalf("diagonal missing (%d,%d)", i, i)
		}
	}

	fb.Clear()
	fb.Line(9, 0, 0, 9, true) // opposite slope
	for i := 0; i < 10; i++ {
		if !fb.GetPixel(9-i, i) {
			t.Fatalf("anti-diagonal missing (%d,%d)", 9-i, i)
		}
	}

	// Shallow slope exercises the x-major branch.
	fb.Clear()
	fb.Line(0, 0, 9, 3, true)
	if !fb.GetPixel(0, 0) || !fb.GetPixel(9, 3) {
		t.Error("shallow line endpoints missing")
	}
}

func TestRect(t *testing.T) {
	fb, _ := NewFramebuffer(16, 16)
	fb.Rect(2, 3, 4, 3, true, true)
	if countPixels(fb) != 12 {
		t.Errorf("filled rect drew %d pixels, want 12", countPixels(fb))
	}
	if !fb.GetPixel(2, 3) || !fb.GetPixel(5, 5) || fb.GetPixel(6, 3) {
		t.Error("filled rect bounds wrong")
	}

	fb.Clear()
	fb.Rect(2, 3, 4, 3, false, true)
	if countPixels(fb) != 10 { // perimeter of 4x3
		t.Errorf("outline rect drew %d pixels, want 10", countPixels(fb))
	}
	if fb.GetPixel(3, 4) {
		t.Error("outline rect filled its interior")
	}
}

func TestCircle_Cardinals(t *testing.T) {
	fb, _ := NewFramebuffer(32, 32)
	fb.Circle(16, 16, 5, true)
	for _, p := range [][2]int{{21, 16}, {11, 16}, {16, 21}, {16, 11}} {
		if !fb.GetPixel(p[0], p[1]) {
			t.Errorf("circle missing cardinal point (%d,%d)", p[0], p[1])
		}
	}
	if fb.GetPixel(16, 16) {
		t.Error("circle filled its center")
	}
}

func TestArc_PartialSweep(t *testing.T) {
	fb, _ := NewFramebuffer(32, 32)
	// 0..90 degrees covers the +x/+y quadrant only.
	fb.Arc(16, 16, 5, 0, 90, true)
	if !fb.GetPixel(21, 16) || !fb.GetPixel(16, 21) {
		t.Error("arc endpoints missing")
	}
	if fb.GetPixel(11, 16) || fb.GetPixel(16, 11) {
		t.Error("arc drew outside its sweep")
	}
}

// ============================================================
// Text
// ============================================================

func TestText_BuiltinFont(t *testing.T) {
	fb, _ := NewFramebuffer(64, 16)
	fb.Text(0, 0, "A", nil, true)

	// 'A' column 0 is 0x7e: rows 1..6 set, row 0 clear.
	if fb.GetPixel(0, 0) {
		t.Error("(0,0) set")
	}
	for y := 1; y <= 6; y++ {
		if !fb.GetPixel(0, y) {
			t.Errorf("(0,%d) not set", y)
		}
	}
}

func TestText_BuiltinAdvance(t *testing.T) {
	fb, _ := NewFramebuffer(64, 16)
	fb.Text(0, 0, "--", nil, true)
	// '-' is 0x08 in all 5 columns: row 3. Second glyph starts after a
	// blank spacing column at x=6.
	for x := 0; x < 5; x++ {
		if !fb.GetPixel(x, 3) || !fb.GetPixel(x+6, 3) {
			t.Fatalf("dash row missing at x=%d", x)
		}
	}
	if fb.GetPixel(5, 3) {
		t.Error("spacing column drawn")
	}
}

// testFont covers 'A' and 'B': 'A' is a 2x2 solid block, 'B' a 1x1 dot.
var testFont = &Font{
	Bitmap: []byte{
		0b11110000, // 'A': rows 11, 11
		0b10000000, // 'B': row 1
	},
	Glyphs: []Glyph{
		{Offset: 0, Width: 2, Height: 2, XAdvance: 3, XOffset: 0, YOffset: 0},
		{Offset: 1, Width: 1, Height: 1, XAdvance: 2, XOffset: 1, YOffset: 1},
	},
	First:    'A',
	Last:     'B',
	YAdvance: 4,
}

func TestText_GlyphFont(t *testing.T) {
	fb, _ := NewFramebuffer(32, 16)
	fb.Text(0, 0, "AB", testFont, true)

	// 'A' block at (0,0)-(1,1).
	for _, p := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		if !fb.GetPixel(p[0], p[1]) {
			t.Errorf("'A' pixel (%d,%d) missing", p[0], p[1])
		}
	}
	// 'B' dot at cursor 3 plus offsets (1,1) = (4,1).
	if !fb.GetPixel(4, 1) {
		t.Error("'B' dot missing")
	}
}

func TestText_SkipsOutOfRange(t *testing.T) {
	fb, _ := NewFramebuffer(32, 16)
	fb.Text(0, 0, "zAz", testFont, true)
	// Only 'A' drawn, at the origin: skipped chars advance nothing.
	if !fb.GetPixel(0, 0) {
		t.Error("'A' missing")
	}
	if countPixels(fb) != 4 {
		t.Errorf("%d pixels drawn, want 4", countPixels(fb))
	}
}

func TestText_WrapsAtRightEdge(t *testing.T) {
	fb, _ := NewFramebuffer(8, 16)
	// Advances 3 per 'A': glyphs at x=0, 3, 6 fit; the fourth would
	// start at x=9 and wraps down by YAdvance.
	fb.Text(0, 0, "AAAA", testFont, true)
	if !fb.GetPixel(0, 4) {
		t.Error("wrapped glyph missing on next line")
	}
}

// ============================================================
// Device command protocol
// ============================================================

func TestStartup_Sequence(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus, Opts{})
	if err := d.Startup(); err != nil {
		t.Fatalf("Startup: %v", err)
	}

	cmds := bus.commands()
	if !bytes.Equal(cmds[0], []byte{cmdDisplayOff}) {
		t.Errorf("first command = % 02x, want display off", cmds[0])
	}

	want := map[string][]byte{
		"charge pump":  {cmdChargePump, 0x14},
		"multiplex":    {cmdSetMultiplex, 63},
		"com pins":     {cmdSetComPins, 0x12},
		"contrast":     {cmdSetContrast, 0xcf},
		"display on":   {cmdDisplayOn},
		"horiz mode":   {cmdSetMemoryMode, 0x00},
		"resume":       {cmdResumeFromRAM},
		"not inverted": {cmdNormalDisplay},
	}
	for name, w := range want {
		found := false
		for _, c := range cmds {
			if bytes.Equal(c, w) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("startup missing %s command % 02x", name, w)
		}
	}

	// Startup ends with a cleared full-frame flush.
	last := bus.writes[len(bus.writes)-1]
	if last.reg != ctrlData || len(last.data) != 128*8 {
		t.Errorf("final transaction reg=%02x len=%d, want data of %d", last.reg, len(last.data), 128*8)
	}
	for _, b := range last.data {
		if b != 0 {
			t.Fatal("startup flushed a non-blank frame")
		}
	}
}

func TestStartup_PowerVariants(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus, Opts{Height: 32, ExternalVCC: true})
	if err := d.Startup(); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	var sawPump, sawPins bool
	for _, c := range bus.commands() {
		if bytes.Equal(c, []byte{cmdChargePump, 0x10}) {
			sawPump = true
		}
		if bytes.Equal(c, []byte{cmdSetComPins, 0x02}) {
			sawPins = true
		}
	}
	if !sawPump {
		t.Error("external VCC did not disable the charge pump")
	}
	if !sawPins {
		t.Error("32-row panel did not get sequential COM pins")
	}
}

func TestStartup_AbortsOnNack(t *testing.T) {
	bus := &fakeBus{nack: true}
	d := newTestDevice(t, bus, Opts{})
	err := d.Startup()
	if !errors.Is(err, i2cbridge.ErrAckFailure) {
		t.Fatalf("err = %v, want ErrAckFailure", err)
	}
	if len(bus.writes) != 1 {
		t.Errorf("%d transactions after failed first step, want 1", len(bus.writes))
	}
}

func TestDisplay_FrameStream(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus, Opts{})
	d.SetPixel(0, 0, true)
	if err := d.Display(); err != nil {
		t.Fatalf("Display: %v", err)
	}

	cmds := bus.commands()
	if !bytes.Equal(cmds[0], []byte{cmdSetColumnAddr, 0, 127}) {
		t.Errorf("column range = % 02x", cmds[0])
	}
	if !bytes.Equal(cmds[1], []byte{cmdSetPageAddr, 0, 7}) {
		t.Errorf("page range = % 02x", cmds[1])
	}
	data := bus.writes[len(bus.writes)-1]
	if data.reg != ctrlData || len(data.data) != 128*8 {
		t.Fatalf("data transaction reg=%02x len=%d", data.reg, len(data.data))
	}
	if data.data[0] != 0x01 {
		t.Errorf("framebuffer byte 0 = %02x, want 01", data.data[0])
	}
}

func TestDisplay_NopWhileScrolling(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus, Opts{})
	if err := d.StartScroll(false, 0, 7); err != nil {
		t.Fatalf("StartScroll: %v", err)
	}
	if !d.Scrolling() {
		t.Fatal("Scrolling() = false after StartScroll")
	}
	if err := d.Display(); err != nil {
		t.Fatalf("Display: %v", err)
	}
	cmds := bus.commands()
	if !bytes.Equal(cmds[len(cmds)-1], []byte{cmdNop}) {
		t.Errorf("last command = % 02x, want nop", cmds[len(cmds)-1])
	}

	if err := d.StopScroll(); err != nil {
		t.Fatalf("StopScroll: %v", err)
	}
	if d.Scrolling() {
		t.Error("Scrolling() = true after StopScroll")
	}
}

func TestSetters_Clamp(t *testing.T) {
	tests := []struct {
		name string
		call func(d *Device) error
		want []byte
	}{
		{"contrast high", func(d *Device) error { return d.SetContrast(300) }, []byte{cmdSetContrast, 255}},
		{"contrast low", func(d *Device) error { return d.SetContrast(-5) }, []byte{cmdSetContrast, 0}},
		{"offset high", func(d *Device) error { return d.SetDisplayOffset(100) }, []byte{cmdSetDisplayOffset, 63}},
		{"start line high", func(d *Device) error { return d.SetStartLine(64) }, []byte{cmdSetStartLine | 63}},
		{"start line ok", func(d *Device) error { return d.SetStartLine(5) }, []byte{cmdSetStartLine | 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeBus{}
			d := newTestDevice(t, bus, Opts{})
			if err := tt.call(d); err != nil {
				t.Fatalf("setter: %v", err)
			}
			if !bytes.Equal(bus.writes[0].data, tt.want) {
				t.Errorf("wrote % 02x, want % 02x", bus.writes[0].data, tt.want)
			}
		})
	}
}

func TestSetColumnStart_Nibbles(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus, Opts{})
	if err := d.SetColumnStart(0x5a); err != nil {
		t.Fatalf("SetColumnStart: %v", err)
	}
	cmds := bus.commands()
	if !bytes.Equal(cmds[0], []byte{cmdSetLowColumn | 0x0a}) {
		t.Errorf("low nibble = % 02x", cmds[0])
	}
	if !bytes.Equal(cmds[1], []byte{cmdSetHighColumn | 0x05}) {
		t.Errorf("high nibble = % 02x", cmds[1])
	}
}

func TestShutdown_Sequence(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus, Opts{})
	d.SetPixel(3, 3, true)
	if err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// The blank flush precedes the mode teardown.
	var dataIdx, offIdx = -1, -1
	for i, w := range bus.writes {
		if w.reg == ctrlData && dataIdx < 0 {
			dataIdx = i
			for _, b := range w.data {
				if b != 0 {
					t.Fatal("shutdown flushed a non-blank frame")
				}
			}
		}
		if w.reg == ctrlCommand && len(w.data) == 1 && w.data[0] == cmdDisplayOff {
			offIdx = i
		}
	}
	if dataIdx < 0 || offIdx < dataIdx {
		t.Error("shutdown order wrong: clear must precede display off")
	}

	want := [][]byte{
		{cmdDeactivateScroll},
		{cmdSetContrast, 0x00},
		{cmdSetDisplayOffset, 0x00},
	}
	for _, w := range want {
		found := false
		for _, c := range bus.commands() {
			if bytes.Equal(c, w) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("shutdown missing command % 02x", w)
		}
	}
}
