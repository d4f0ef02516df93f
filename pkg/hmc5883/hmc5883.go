// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

// Package hmc5883 drives an HMC5883L-class three-axis magnetometer over
// an I2C bridge tunnel. It covers device configuration, gain-scaled
// sample decoding, a continuous sampling loop, and a self-test based
// calibration routine producing per-axis offset and gain corrections.
package hmc5883

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/magnetar-labs/lodestone/pkg/i2cbridge"
)

// Bus is the register-level I2C access the driver needs. A
// *i2cbridge.Tunnel satisfies it.
type Bus interface {
	RegWrite(addr, reg byte, data ...byte) (bool, error)
	RegRead(addr, reg byte, n int) ([]byte, error)
}

// DefaultAddr is the device's fixed 7-bit I2C address.
const DefaultAddr = 0x1e

// Register map. Data registers hold big-endian int16 in X, Z, Y order.
const (
	regConfigA = 0x00
	regConfigB = 0x01
	regMode    = 0x02
	regData    = 0x03
)

// Config register A bias bits.
const (
	biasNormal   = 0x00
	biasPositive = 0x01
	biasNegative = 0x02
)

// satCount is the data register value flagging ADC overflow. The axis is
// reported as NaN rather than failing the whole read.
const satCount = -4096

// Averaging selects how many samples the device averages per output.
type Averaging int

// Supported averaging counts.
const (
	Average1 Averaging = 1
	Average2 Averaging = 2
	Average4 Averaging = 4
	Average8 Averaging = 8
)

func (a Averaging) bits() (byte, error) {
	switch a {
	case Average1:
		return 0b00 << 5, nil
	case Average2:
		return 0b01 << 5, nil
	case Average4:
		return 0b10 << 5, nil
	case Average8:
		return 0b11 << 5, nil
	default:
		return 0, fmt.Errorf("%w: averaging %d", i2cbridge.ErrUnsupportedValue, a)
	}
}

// DataRate selects the continuous-mode output rate.
type DataRate int

// Supported output data rates.
const (
	Rate0Hz75 DataRate = iota
	Rate1Hz5
	Rate3Hz
	Rate7Hz5
	Rate15Hz
	Rate30Hz
	Rate75Hz
)

func (r DataRate) bits() (byte, error) {
	if r < Rate0Hz75 || r > Rate75Hz {
		return 0, fmt.Errorf("%w: data rate code %d", i2cbridge.ErrUnsupportedValue, r)
	}
	return byte(r) << 2, nil
}

// Gain selects the measurement range and its digital resolution.
type Gain int

// Gain codes, named after the field range in gauss.
const (
	Gain0Ga88 Gain = iota
	Gain1Ga3
	Gain1Ga9
	Gain2Ga5
	Gain4Ga0
	Gain4Ga7
	Gain5Ga6
	Gain8Ga1
)

// resolutions maps gain code to digital resolution in milligauss per
// count, per the datasheet.
var resolutions = [8]float64{0.73, 0.92, 1.22, 1.52, 2.27, 2.56, 3.03, 4.35}

func (g Gain) resolution() (float64, error) {
	if g < Gain0Ga88 || g > Gain8Ga1 {
		return 0, fmt.Errorf("%w: gain code %d", i2cbridge.ErrUnsupportedValue, g)
	}
	return resolutions[g], nil
}

// Mode is the device operating mode register value.
type Mode byte

// Operating modes.
const (
	ModeContinuous Mode = 0x00
	ModeSingle     Mode = 0x01
	ModeIdle       Mode = 0x02
)

// Reading is one gain-scaled three-axis sample in milligauss. A NaN axis
// means the sensor saturated on that axis.
type Reading struct {
	X, Y, Z float64
}

// Calibration holds per-axis corrections: an additive offset and a
// multiplicative gain-error factor, applied to every raw reading.
type Calibration struct {
	OffsetX float64 `cbor:"offset_x"`
	OffsetY float64 `cbor:"offset_y"`
	OffsetZ float64 `cbor:"offset_z"`
	GainX   float64 `cbor:"gain_x"`
	GainY   float64 `cbor:"gain_y"`
	GainZ   float64 `cbor:"gain_z"`
}

// Identity is the no-correction calibration: zero offsets, unity gains.
func Identity() Calibration {
	return Calibration{GainX: 1, GainY: 1, GainZ: 1}
}

// Opts configures a Device at construction.
type Opts struct {
	Addr        byte      // 0 means DefaultAddr
	Averaging   Averaging // 0 means Average8
	Rate        DataRate
	Gain        Gain
	Mode        Mode
	Declination float64      // degrees, stored internally in radians
	Calibration *Calibration // nil means identity
}

// Device is one magnetometer instance on one bus.
type Device struct {
	bus        Bus
	addr       byte
	averaging  Averaging
	rate       DataRate
	gain       Gain
	mode       Mode
	resolution float64 // mGa per count for the configured gain
	declRad    float64

	mu       sync.Mutex
	cal      Calibration
	sampling bool
	cancel   context.CancelFunc
	done     chan struct{}

	// settleDelay is the datasheet minimum pause after each data read;
	// calWindow bounds the min/max sweep of calibration. Both are
	// fields so tests can shrink them.
	settleDelay time.Duration
	calWindow   time.Duration
}

// New validates the options and builds a Device. No I/O happens until
// Init.
func New(bus Bus, opts Opts) (*Device, error) {
	if opts.Addr == 0 {
		opts.Addr = DefaultAddr
	}
	if opts.Averaging == 0 {
		opts.Averaging = Average8
	}
	if _, err := opts.Averaging.bits(); err != nil {
		return nil, err
	}
	if _, err := opts.Rate.bits(); err != nil {
		return nil, err
	}
	res, err := opts.Gain.resolution()
	if err != nil {
		return nil, err
	}
	cal := Identity()
	if opts.Calibration != nil {
		cal = *opts.Calibration
	}
	return &Device{
		bus:         bus,
		addr:        opts.Addr,
		averaging:   opts.Averaging,
		rate:        opts.Rate,
		gain:        opts.Gain,
		mode:        opts.Mode,
		resolution:  res,
		declRad:     opts.Declination * math.Pi / 180,
		cal:         cal,
		settleDelay: 67 * time.Millisecond,
		calWindow:   60 * time.Second,
	}, nil
}

// writeReg writes one register and converts a NACK into an error.
func (d *Device) writeReg(reg, val byte) error {
	ack, err := d.bus.RegWrite(d.addr, reg, val)
	if err != nil {
		return fmt.Errorf("magnetometer reg %02x: %w", reg, err)
	}
	if !ack {
		return fmt.Errorf("%w: magnetometer reg %02x", i2cbridge.ErrAckFailure, reg)
	}
	return nil
}

// configA packs averaging, rate and bias into the CRA register value.
func (d *Device) configA(bias byte) byte {
	avg, _ := d.averaging.bits()
	rate, _ := d.rate.bits()
	return avg | rate | bias
}

// Init writes the three configuration registers: averaging and rate,
// gain, then operating mode.
func (d *Device) Init() error {
	if err := d.writeReg(regConfigA, d.configA(biasNormal)); err != nil {
		return err
	}
	if err := d.writeReg(regConfigB, byte(d.gain)<<5); err != nil {
		return err
	}
	return d.writeReg(regMode, byte(d.mode))
}

// RawValues reads one gain-scaled sample. A saturated axis comes back as
// NaN; the other axes still carry data. The datasheet-minimum settle
// pause happens after every read.
func (d *Device) RawValues() (Reading, error) {
	data, err := d.bus.RegRead(d.addr, regData, 6)
	if err != nil {
		return Reading{}, fmt.Errorf("magnetometer data read: %w", err)
	}
	if len(data) != 6 {
		return Reading{}, fmt.Errorf("%w: magnetometer data read returned %d bytes", i2cbridge.ErrTimeout, len(data))
	}

	// Device register order is X, Z, Y.
	r := Reading{
		X: d.scale(decodeInt16(data[0], data[1])),
		Z: d.scale(decodeInt16(data[2], data[3])),
		Y: d.scale(decodeInt16(data[4], data[5])),
	}
	time.Sleep(d.settleDelay)
	return r, nil
}

// decodeInt16 assembles a big-endian signed 16-bit count.
func decodeInt16(msb, lsb byte) int16 {
	return int16(uint16(msb)<<8 | uint16(lsb))
}

func (d *Device) scale(count int16) float64 {
	if count == satCount {
		return math.NaN()
	}
	return float64(count) * d.resolution
}

// Calibration returns the correction currently applied to readings.
func (d *Device) Calibration() Calibration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal
}

// SetCalibration replaces the applied correction.
func (d *Device) SetCalibration(c Calibration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cal = c
}

// CalibratedValues reads a sample and applies the calibration: raw times
// gain error, plus offset, per axis.
func (d *Device) CalibratedValues() (Reading, error) {
	raw, err := d.RawValues()
	if err != nil {
		return Reading{}, err
	}
	cal := d.Calibration()
	return Reading{
		X: raw.X*cal.GainX + cal.OffsetX,
		Y: raw.Y*cal.GainY + cal.OffsetY,
		Z: raw.Z*cal.GainZ + cal.OffsetZ,
	}, nil
}

// Heading converts a reading into a compass heading in radians,
// declination-corrected and normalized to [0, 2π).
func (d *Device) Heading(r Reading) float64 {
	h := math.Atan2(r.Y, r.X) + d.declRad
	for h < 0 {
		h += 2 * math.Pi
	}
	for h >= 2*math.Pi {
		h -= 2 * math.Pi
	}
	return h
}

// StartContinuousReader launches the sampling loop, invoking cb with
// each calibrated reading until the context is cancelled,
// StopContinuousReader is called, or a read fails. Calling it while a
// loop is already running is a no-op. The loop's only suspension point
// is the read's internal settle pause.
func (d *Device) StartContinuousReader(ctx context.Context, cb func(Reading)) {
	d.mu.Lock()
	if d.sampling {
		d.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.sampling = true
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			d.sampling = false
			d.cancel = nil
			d.done = nil
			d.mu.Unlock()
			close(done)
		}()
		for {
			select {
			case <-loopCtx.Done():
				return
			default:
			}
			r, err := d.CalibratedValues()
			if err != nil {
				return
			}
			cb(r)
		}
	}()
}

// StopContinuousReader cancels the sampling loop and waits for it to
// finish. Safe to call when no loop is running.
func (d *Device) StopContinuousReader() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sampling reports whether a reader or calibration loop is running.
func (d *Device) Sampling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampling
}
