// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

package hmc5883

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Save writes the calibration record to path as CBOR.
func (c Calibration) Save(path string) error {
	data, err := cbor.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	return nil
}

// LoadCalibration reads a CBOR calibration record written by Save.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("read calibration: %w", err)
	}
	var c Calibration
	if err := cbor.Unmarshal(data, &c); err != nil {
		return Calibration{}, fmt.Errorf("decode calibration %s: %w", path, err)
	}
	return c, nil
}
