// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

package hmc5883

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrSampling means a reader or calibration loop is already running on
// this device.
var ErrSampling = errors.New("sampler already running")

// Self-test parameters. With the self-test bias enabled the device
// applies a known excitation field: one nominal value for X and Y, a
// smaller one for Z, per the datasheet. Readings must clear the
// threshold before the bias field is trusted to be active.
const (
	selfTestXY    = 1160.0 // mGa
	selfTestZ     = 1080.0 // mGa
	biasThreshold = 200.0  // mGa
)

// StartCalibration runs the full calibration procedure and blocks until
// it completes, the context is cancelled, or AbortCalibration is called.
// Cancellation at any point returns whatever has been accumulated so
// far. The progress callback receives the running per-axis min and max
// during the sweep phase; it may be nil.
//
// The procedure: positive self-test bias until readings clear the
// threshold, gain estimate per axis from the known excitation field;
// the same under negative bias; the two estimates averaged; then a
// bounded sweep tracking min/max of gain-corrected samples, from which
// the per-axis offset is derived. The resulting record is applied to
// the device.
func (d *Device) StartCalibration(ctx context.Context, progress func(min, max Reading)) (Calibration, error) {
	d.mu.Lock()
	if d.sampling {
		d.mu.Unlock()
		return Calibration{}, ErrSampling
	}
	calCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.sampling = true
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	defer func() {
		cancel()
		d.mu.Lock()
		d.sampling = false
		d.cancel = nil
		d.done = nil
		d.mu.Unlock()
		close(done)
	}()

	cal := Identity()

	finish := func(err error) (Calibration, error) {
		// Leave the device in normal measurement mode whatever happened.
		d.writeReg(regConfigA, d.configA(biasNormal))
		if err == nil {
			d.SetCalibration(cal)
		}
		return cal, err
	}

	// Phase 1: positive bias gain estimate.
	gainPos, err := d.biasPhase(calCtx, biasPositive)
	if err != nil {
		return finish(err)
	}
	if calCtx.Err() != nil {
		return finish(nil)
	}

	// Phase 2: negative bias, then average the two estimates.
	gainNeg, err := d.biasPhase(calCtx, biasNegative)
	if err != nil {
		return finish(err)
	}
	if calCtx.Err() != nil {
		return finish(nil)
	}
	cal.GainX = (gainPos.X + gainNeg.X) / 2
	cal.GainY = (gainPos.Y + gainNeg.Y) / 2
	cal.GainZ = (gainPos.Z + gainNeg.Z) / 2

	// Phase 3: back to normal measurement, let the field settle.
	if err := d.writeReg(regConfigA, d.configA(biasNormal)); err != nil {
		return finish(err)
	}
	time.Sleep(d.settleDelay)

	// Phase 4: sweep min/max of gain-corrected samples.
	min := Reading{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := Reading{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	deadline := time.Now().Add(d.calWindow)
	for time.Now().Before(deadline) {
		if calCtx.Err() != nil {
			break
		}
		raw, err := d.RawValues()
		if err != nil {
			return finish(err)
		}
		updateRange(&min.X, &max.X, raw.X*cal.GainX)
		updateRange(&min.Y, &max.Y, raw.Y*cal.GainY)
		updateRange(&min.Z, &max.Z, raw.Z*cal.GainZ)
		if progress != nil {
			progress(min, max)
		}
	}

	// Phase 5: per-axis offset from the observed range.
	cal.OffsetX = offsetFromRange(min.X, max.X)
	cal.OffsetY = offsetFromRange(min.Y, max.Y)
	cal.OffsetZ = offsetFromRange(min.Z, max.Z)

	return finish(nil)
}

// AbortCalibration stops a running calibration early; the blocked
// StartCalibration call returns the partial record. Safe to call when
// nothing is running. It waits for the procedure to wind down, so it
// must not be called from the progress callback itself.
func (d *Device) AbortCalibration() {
	d.StopContinuousReader()
}

// biasPhase enables a self-test bias, waits for the bias field to show
// up on all axes, and estimates the per-axis gain error from the known
// excitation. Under negative bias the expected readings are mirrored.
func (d *Device) biasPhase(ctx context.Context, bias byte) (Reading, error) {
	if err := d.writeReg(regConfigA, d.configA(bias)); err != nil {
		return Identity().gains(), err
	}
	time.Sleep(d.settleDelay)

	sign := 1.0
	if bias == biasNegative {
		sign = -1.0
	}

	for {
		if ctx.Err() != nil {
			return Identity().gains(), nil
		}
		r, err := d.RawValues()
		if err != nil {
			return Identity().gains(), err
		}
		if sign*r.X > biasThreshold && sign*r.Y > biasThreshold && sign*r.Z > biasThreshold {
			return Reading{
				X: sign * selfTestXY / r.X,
				Y: sign * selfTestXY / r.Y,
				Z: sign * selfTestZ / r.Z,
			}, nil
		}
	}
}

// gains views a calibration's gain factors as a Reading.
func (c Calibration) gains() Reading {
	return Reading{X: c.GainX, Y: c.GainY, Z: c.GainZ}
}

// updateRange folds v into a running min/max, ignoring saturated (NaN)
// samples.
func updateRange(min, max *float64, v float64) {
	if math.IsNaN(v) {
		return
	}
	if v < *min {
		*min = v
	}
	if v > *max {
		*max = v
	}
}

// offsetFromRange derives the additive correction from the observed
// extremes: minus half the spread. An empty range yields zero.
func offsetFromRange(min, max float64) float64 {
	if min > max {
		return 0
	}
	return (min - max) / 2
}
