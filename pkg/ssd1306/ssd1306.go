// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

package ssd1306

import (
	"fmt"

	"github.com/magnetar-labs/lodestone/pkg/i2cbridge"
)

// Bus is the register-level I2C access the driver needs. A
// *i2cbridge.Tunnel satisfies it.
type Bus interface {
	RegWrite(addr, reg byte, data ...byte) (bool, error)
}

// DefaultAddr is the controller's usual 7-bit I2C address.
const DefaultAddr = 0x3c

// Control byte prefixes. Every transaction starts with one, telling the
// controller whether command bytes or pixel data follow.
const (
	ctrlCommand = 0x00
	ctrlData    = 0x40
)

// Command opcodes.
const (
	cmdSetContrast      = 0x81
	cmdChargePump       = 0x8d
	cmdSegRemapOff      = 0xa0
	cmdSegRemapOn       = 0xa1
	cmdResumeFromRAM    = 0xa4
	cmdNormalDisplay    = 0xa6
	cmdInvertDisplay    = 0xa7
	cmdSetMultiplex     = 0xa8
	cmdDisplayOff       = 0xae
	cmdDisplayOn        = 0xaf
	cmdComScanInc       = 0xc0
	cmdComScanDec       = 0xc8
	cmdSetDisplayOffset = 0xd3
	cmdSetClockDivide   = 0xd5
	cmdSetPrecharge     = 0xd9
	cmdSetComPins       = 0xda
	cmdSetVcomDeselect  = 0xdb
	cmdSetMemoryMode    = 0x20
	cmdSetColumnAddr    = 0x21
	cmdSetPageAddr      = 0x22
	cmdSetLowColumn     = 0x00
	cmdSetHighColumn    = 0x10
	cmdSetStartLine     = 0x40
	cmdDeactivateScroll = 0x2e
	cmdActivateScroll   = 0x2f
	cmdScrollRight      = 0x26
	cmdScrollLeft       = 0x27
	cmdNop              = 0xe3
)

// Opts configures a display Device.
type Opts struct {
	Addr        byte // 0 means DefaultAddr
	Width       int  // 0 means 128
	Height      int  // 0 means 64
	ExternalVCC bool // panel powered externally instead of by charge pump
}

// Device is one display controller with its exclusively owned
// framebuffer. Drawing goes to the framebuffer; only Startup, Shutdown,
// Display and the register setters touch the bus.
type Device struct {
	*Framebuffer

	bus         Bus
	addr        byte
	externalVCC bool
	scrolling   bool
}

// New allocates the framebuffer and builds the driver. No I/O happens
// until Startup.
func New(bus Bus, opts Opts) (*Device, error) {
	if opts.Addr == 0 {
		opts.Addr = DefaultAddr
	}
	if opts.Width == 0 {
		opts.Width = 128
	}
	if opts.Height == 0 {
		opts.Height = 64
	}
	fb, err := NewFramebuffer(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	return &Device{
		Framebuffer: fb,
		bus:         bus,
		addr:        opts.Addr,
		externalVCC: opts.ExternalVCC,
	}, nil
}

// command sends command bytes under the command control prefix.
func (d *Device) command(cmds ...byte) error {
	ack, err := d.bus.RegWrite(d.addr, ctrlCommand, cmds...)
	if err != nil {
		return fmt.Errorf("display command % 02x: %w", cmds, err)
	}
	if !ack {
		return fmt.Errorf("%w: display command % 02x", i2cbridge.ErrAckFailure, cmds)
	}
	return nil
}

// data sends pixel bytes under the data control prefix.
func (d *Device) data(buf []byte) error {
	ack, err := d.bus.RegWrite(d.addr, ctrlData, buf...)
	if err != nil {
		return fmt.Errorf("display data: %w", err)
	}
	if !ack {
		return fmt.Errorf("%w: display data", i2cbridge.ErrAckFailure)
	}
	return nil
}

// Startup runs the panel's power-on configuration sequence and leaves
// it on with a cleared screen. The charge pump, contrast and precharge
// values depend on the power source. Any failing step aborts.
func (d *Device) Startup() error {
	chargePump := byte(0x14)
	contrast := byte(0xcf)
	precharge := byte(0xf1)
	if d.externalVCC {
		chargePump = 0x10
		contrast = 0x9f
		precharge = 0x22
	}
	comPins := byte(0x02)
	if d.Height() == 64 {
		comPins = 0x12
	}

	steps := [][]byte{
		{cmdDisplayOff},
		{cmdSetClockDivide, 0x80},
		{cmdSetMultiplex, byte(d.Height() - 1)},
		{cmdSetDisplayOffset, 0x00},
		{cmdSetStartLine | 0x00},
		{cmdChargePump, chargePump},
		{cmdSetMemoryMode, 0x00}, // horizontal addressing
		{cmdSegRemapOff},
		{cmdComScanInc},
		{cmdSetComPins, comPins},
		{cmdSetContrast, contrast},
		{cmdSetPrecharge, precharge},
		{cmdSetVcomDeselect, 0x40},
		{cmdResumeFromRAM},
		{cmdNormalDisplay},
		{cmdDisplayOn},
	}
	for _, step := range steps {
		if err := d.command(step...); err != nil {
			return err
		}
	}

	d.Clear()
	return d.Display()
}

// Shutdown blanks the screen and returns every mode register to its
// neutral value before switching the panel off.
func (d *Device) Shutdown() error {
	d.Clear()
	if err := d.Display(); err != nil {
		return err
	}
	steps := [][]byte{
		{cmdDisplayOff},
		{cmdNormalDisplay},
		{cmdSegRemapOff},
		{cmdComScanInc},
		{cmdDeactivateScroll},
		{cmdSetContrast, 0x00},
		{cmdSetDisplayOffset, 0x00},
	}
	for _, step := range steps {
		if err := d.command(step...); err != nil {
			return err
		}
	}
	d.scrolling = false
	return nil
}

// Display flushes the whole framebuffer: full column and page address
// ranges, then the packed pixel bytes. While a scroll is active the
// controller wants a harmless no-op command after the data.
func (d *Device) Display() error {
	if err := d.command(cmdSetColumnAddr, 0, byte(d.Width()-1)); err != nil {
		return err
	}
	if err := d.command(cmdSetPageAddr, 0, byte(d.Pages()-1)); err != nil {
		return err
	}
	if err := d.data(d.Bytes()); err != nil {
		return err
	}
	if d.scrolling {
		return d.command(cmdNop)
	}
	return nil
}

// clamp bounds v into [0, max].
func clamp(v, max int) byte {
	if v < 0 {
		v = 0
	}
	if v > max {
		v = max
	}
	return byte(v)
}

// SetContrast sets the panel contrast, clamped to 0..255.
func (d *Device) SetContrast(level int) error {
	return d.command(cmdSetContrast, clamp(level, 255))
}

// SetDisplayOffset sets the vertical COM shift, clamped to 0..63.
func (d *Device) SetDisplayOffset(offset int) error {
	return d.command(cmdSetDisplayOffset, clamp(offset, 63))
}

// SetStartLine sets the display start line, clamped to 0..63.
func (d *Device) SetStartLine(line int) error {
	return d.command(cmdSetStartLine | clamp(line, 63))
}

// SetColumnStart positions the column pointer, clamped to the panel
// width, split across the low and high nibble commands.
func (d *Device) SetColumnStart(col int) error {
	c := clamp(col, d.Width()-1)
	if err := d.command(cmdSetLowColumn | (c & 0x0f)); err != nil {
		return err
	}
	return d.command(cmdSetHighColumn | (c >> 4))
}

// SetInverted switches between normal and inverted pixel polarity.
func (d *Device) SetInverted(inverted bool) error {
	if inverted {
		return d.command(cmdInvertDisplay)
	}
	return d.command(cmdNormalDisplay)
}

// SetFlipHorizontal mirrors the panel along the vertical axis.
func (d *Device) SetFlipHorizontal(flipped bool) error {
	if flipped {
		return d.command(cmdSegRemapOn)
	}
	return d.command(cmdSegRemapOff)
}

// SetFlipVertical mirrors the panel along the horizontal axis.
func (d *Device) SetFlipVertical(flipped bool) error {
	if flipped {
		return d.command(cmdComScanDec)
	}
	return d.command(cmdComScanInc)
}

// StartScroll begins a continuous horizontal scroll across the given
// page range.
func (d *Device) StartScroll(left bool, startPage, endPage int) error {
	op := byte(cmdScrollRight)
	if left {
		op = cmdScrollLeft
	}
	err := d.command(op,
		0x00,
		clamp(startPage, d.Pages()-1),
		0x00, // frame interval: 5 frames
		clamp(endPage, d.Pages()-1),
		0x00,
		0xff,
	)
	if err != nil {
		return err
	}
	if err := d.command(cmdActivateScroll); err != nil {
		return err
	}
	d.scrolling = true
	return nil
}

// StopScroll halts any active scroll. The controller requires the RAM
// to be rewritten afterwards; callers typically follow with Display.
func (d *Device) StopScroll() error {
	if err := d.command(cmdDeactivateScroll); err != nil {
		return err
	}
	d.scrolling = false
	return nil
}

// Scrolling reports whether a hardware scroll is active.
func (d *Device) Scrolling() bool {
	return d.scrolling
}
