// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Magnetar Labs
//
// Lodestone - USB I2C bridge CLI
//
// Drives an I2C master adapter over a serial (or WebSocket) tunnel,
// with device tools for HMC5883L magnetometers and SSD1306 displays.

package main

import (
	"os"

	"github.com/magnetar-labs/lodestone/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
