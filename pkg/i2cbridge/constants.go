// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

// Package i2cbridge implements the command protocol of the I2C bridge
// USB-serial adapter: an I2C master tunneled over a byte-oriented serial
// transport.
//
// The package provides the connect handshake, status query, bus
// configuration, bus scan, and the raw start/stop/read/write primitives
// that register-level transfers are built from. One Tunnel owns one
// Transport; operations are serialized internally.
package i2cbridge

import "time"

// Command opcodes (host → adapter)
const (
	cmdSync      = 0x40 // '@' no-op, resynchronizes the command parser
	cmdEcho      = 0x65 // 'e' + char, adapter echoes the char back
	cmdStatus    = 0x3F // '?' status report line
	cmdReset     = 0x5F // '_' adapter reboot
	cmdBusReset  = 0x78 // 'x' I2C bus reset, responds '3' on idle bus
	cmdPullups   = 0x75 // 'u' + mask, pullup resistor configuration
	cmdSpeed100  = 0x31 // '1' 100 kHz bus clock
	cmdSpeed400  = 0x34 // '4' 400 kHz bus clock
	cmdScan      = 0x64 // 'd' scan addresses 8..119
	cmdStart     = 0x73 // 's' + (addr<<1|dir), I2C START condition
	cmdStop      = 0x70 // 'p' I2C STOP condition
	cmdRegRead   = 0x72 // 'r' + addr + register + count
	cmdWriteMask = 0xC0 // 0xC0|(len-1) + payload, write chunk
	cmdReadMask  = 0x80 // 0x80|(len-1), read chunk request
)

// Protocol limits
const (
	MaxChunkSize = 64  // payload bytes per read/write chunk
	ScanFirst    = 8   // lowest scannable 7-bit address
	ScanLast     = 119 // highest scannable 7-bit address
	scanSpan     = ScanLast - ScanFirst + 1

	busResetOK = '3' // bus reset acknowledgment sentinel

	maxPullupMask = 63
)

// Handshake parameters
const (
	syncFlushCount = 64 // sync bytes written to drain a partial command
	statusFields   = 12
)

// echoProbes are written one at a time during Connect; each must come
// back as an exact single-byte echo.
var echoProbes = [4]byte{'A', 0x0D, 0x0A, 'Z'}

// Timing
const (
	pollInterval     = 20 * time.Millisecond
	syncSettleDelay  = 50 * time.Millisecond
	resetSettleDelay = 500 * time.Millisecond

	DefaultTimeout = 1 * time.Second
)

// ConnState tracks the tunnel connection lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns the state name for diagnostics.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
