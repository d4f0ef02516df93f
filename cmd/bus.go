// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Magnetar Labs

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var busCmd = &cobra.Command{
	Use:   "bus",
	Short: "Configure or reset the I2C bus",
}

var busSpeedCmd = &cobra.Command{
	Use:   "speed {100|400}",
	Short: "Set the bus clock in kHz",
	Args:  cobra.ExactArgs(1),
	RunE:  runBusSpeed,
}

var busPullupsCmd = &cobra.Command{
	Use:   "pullups <mask>",
	Short: "Set the pullup resistor mask (0-63)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBusPullups,
}

var busResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clock the bus free and verify it is idle",
	RunE:  runBusReset,
}

func init() {
	busCmd.AddCommand(busSpeedCmd)
	busCmd.AddCommand(busPullupsCmd)
	busCmd.AddCommand(busResetCmd)
	rootCmd.AddCommand(busCmd)
}

func runBusSpeed(cmd *cobra.Command, args []string) error {
	khz, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid speed %q", args[0])
	}

	tun, _, err := openTunnel()
	if err != nil {
		return err
	}
	defer tun.Disconnect()

	if err := tun.SetSpeed(khz); err != nil {
		return err
	}
	fmt.Printf("Bus speed set to %d kHz\n", khz)
	return nil
}

func runBusPullups(cmd *cobra.Command, args []string) error {
	mask, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pullup mask %q", args[0])
	}

	tun, _, err := openTunnel()
	if err != nil {
		return err
	}
	defer tun.Disconnect()

	if err := tun.SetPullups(mask); err != nil {
		return err
	}
	fmt.Printf("Pullup mask set to %06b\n", mask)
	return nil
}

func runBusReset(cmd *cobra.Command, args []string) error {
	tun, _, err := openTunnel()
	if err != nil {
		return err
	}
	defer tun.Disconnect()

	if err := tun.BusReset(); err != nil {
		return err
	}
	fmt.Println("Bus reset ok")
	return nil
}
