// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Magnetar Labs

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Connect behavior
	busResetOnConnect bool
)

var rootCmd = &cobra.Command{
	Use:   "lodestone",
	Short: "I2C bridge adapter tool",
	Long: `Lodestone - a CLI for the I2C bridge USB-serial adapter.

Drives the adapter's command protocol over a local serial port or a
remote serial-over-WebSocket bridge, and layers device tools on top:
bus scan and configuration, an HMC5883L magnetometer (live readout and
calibration), and an SSD1306 OLED display.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 1000000]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the
LODESTONE_PASSWORD environment variable, or prompted interactively if
not set. The --password flag is intentionally not provided to avoid
leaking credentials in shell history.`,
	Version: "1.2.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 1000000, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVar(&busResetOnConnect, "reset", false, "Force a bus reset while connecting")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
