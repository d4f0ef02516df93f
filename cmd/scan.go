// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Magnetar Labs

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magnetar-labs/lodestone/pkg/i2cbridge"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the bus for responding devices",
	Long: `Probe every 7-bit address from 8 to 119 and list the devices that
acknowledge, as a hex table with absent addresses shown as "--".`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	tun, _, err := openTunnel()
	if err != nil {
		return err
	}
	defer tun.Disconnect()

	addrs, err := tun.Scan()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	fmt.Print(i2cbridge.FormatScanTable(addrs))
	fmt.Printf("\n%d device(s) found\n", len(addrs))
	return nil
}
