// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

package i2cbridge

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is an immutable snapshot of the adapter's status report.
type Status struct {
	Port        string  // port identifier, filled in by the tunnel
	Model       string  // adapter model id
	Serial      string  // adapter serial number
	Uptime      uint64  // seconds since adapter power-up
	Voltage     float64 // USB supply voltage, volts
	Current     float64 // bus current, milliamps
	Temperature float64 // adapter temperature, celsius
	Mode        string  // bus mode indicator ("I" idle, "B" bitbang)
	SDA         int     // SDA line level, 1 = high
	SCL         int     // SCL line level, 1 = high
	Speed       int     // bus clock, kHz
	Pullups     int     // pullup resistor mask
	CRC         uint32  // running CRC of all transmitted traffic
}

// BusFree reports whether both bus lines are idle high. A low line after
// a status query means a device is holding the bus and a bus reset is
// needed before transactions can proceed.
func (s Status) BusFree() bool {
	return s.SDA == 1 && s.SCL == 1
}

// String renders the snapshot as a one-line summary.
func (s Status) String() string {
	return fmt.Sprintf("%s %s uptime=%ds %.3fV %.0fmA %.1fC mode=%s sda=%d scl=%d %dkHz pullups=%02d crc=%04x",
		s.Model, s.Serial, s.Uptime, s.Voltage, s.Current, s.Temperature,
		s.Mode, s.SDA, s.SCL, s.Speed, s.Pullups, s.CRC)
}

// parseStatus decodes the bracketed, space-separated report line:
//
//	[model serial uptime voltage current temperature mode sda scl speed pullups crc]
//
// Field count or type mismatches fail with ErrParse.
func parseStatus(raw []byte) (Status, error) {
	line := string(raw)
	open := strings.IndexByte(line, '[')
	close := strings.IndexByte(line, ']')
	if open < 0 || close < 0 || close < open {
		return Status{}, fmt.Errorf("%w: no bracketed report in %q", ErrParse, line)
	}

	fields := strings.Fields(line[open+1 : close])
	if len(fields) != statusFields {
		return Status{}, fmt.Errorf("%w: %d fields, want %d", ErrParse, len(fields), statusFields)
	}

	var st Status
	var err error
	st.Model = fields[0]
	st.Serial = fields[1]
	if st.Uptime, err = strconv.ParseUint(fields[2], 10, 64); err != nil {
		return Status{}, fmt.Errorf("%w: uptime %q", ErrParse, fields[2])
	}
	if st.Voltage, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return Status{}, fmt.Errorf("%w: voltage %q", ErrParse, fields[3])
	}
	if st.Current, err = strconv.ParseFloat(fields[4], 64); err != nil {
		return Status{}, fmt.Errorf("%w: current %q", ErrParse, fields[4])
	}
	if st.Temperature, err = strconv.ParseFloat(fields[5], 64); err != nil {
		return Status{}, fmt.Errorf("%w: temperature %q", ErrParse, fields[5])
	}
	st.Mode = fields[6]
	if st.SDA, err = strconv.Atoi(fields[7]); err != nil {
		return Status{}, fmt.Errorf("%w: sda %q", ErrParse, fields[7])
	}
	if st.SCL, err = strconv.Atoi(fields[8]); err != nil {
		return Status{}, fmt.Errorf("%w: scl %q", ErrParse, fields[8])
	}
	if st.Speed, err = strconv.Atoi(fields[9]); err != nil {
		return Status{}, fmt.Errorf("%w: speed %q", ErrParse, fields[9])
	}
	if st.Pullups, err = strconv.Atoi(fields[10]); err != nil {
		return Status{}, fmt.Errorf("%w: pullups %q", ErrParse, fields[10])
	}
	crc, err := strconv.ParseUint(fields[11], 16, 32)
	if err != nil {
		return Status{}, fmt.Errorf("%w: crc %q", ErrParse, fields[11])
	}
	st.CRC = uint32(crc)
	return st, nil
}
