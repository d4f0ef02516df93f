// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

package i2cbridge

import "errors"

// Error kinds surfaced by the transport and tunnel. Callers branch with
// errors.Is; every wrapped error carries one of these sentinels.
var (
	// ErrPort is a transport-level failure: the port cannot be opened
	// or the underlying stream broke mid-operation.
	ErrPort = errors.New("port error")

	// ErrTimeout means the expected byte count did not arrive in time.
	ErrTimeout = errors.New("timeout")

	// ErrEchoMismatch means the connect handshake echo test failed.
	ErrEchoMismatch = errors.New("echo mismatch")

	// ErrParse means the status report line was malformed.
	ErrParse = errors.New("status parse error")

	// ErrOutOfRange rejects a caller-supplied value outside its domain.
	ErrOutOfRange = errors.New("value out of range")

	// ErrUnsupportedValue rejects a value not in the supported set.
	ErrUnsupportedValue = errors.New("unsupported value")

	// ErrBusBusy means the adapter rejected a bus reset.
	ErrBusBusy = errors.New("bus busy")

	// ErrAckFailure means a device NACKed an I2C transaction.
	ErrAckFailure = errors.New("ack failure")

	// ErrNotConnected means an operation requires a completed Connect.
	ErrNotConnected = errors.New("not connected")
)
