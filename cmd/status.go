// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Magnetar Labs

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Connect to the adapter and print its status report",
	Long: `Run the connect handshake and print the adapter's parsed status:
identity, uptime, supply voltage, bus current, temperature, bus line
levels, clock speed and pullup configuration.

Use --reset to force a bus reset during the handshake; a reset also
happens automatically when the bus lines are stuck low.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	tun, st, err := openTunnel()
	if err != nil {
		return err
	}
	defer tun.Disconnect()

	fmt.Printf("Port:        %s\n", st.Port)
	fmt.Printf("Model:       %s\n", st.Model)
	fmt.Printf("Serial:      %s\n", st.Serial)
	fmt.Printf("Uptime:      %ds\n", st.Uptime)
	fmt.Printf("Voltage:     %.3f V\n", st.Voltage)
	fmt.Printf("Current:     %.1f mA\n", st.Current)
	fmt.Printf("Temperature: %.1f C\n", st.Temperature)
	fmt.Printf("Mode:        %s\n", st.Mode)
	fmt.Printf("SDA/SCL:     %d/%d\n", st.SDA, st.SCL)
	fmt.Printf("Speed:       %d kHz\n", st.Speed)
	fmt.Printf("Pullups:     %06b\n", st.Pullups)
	fmt.Printf("CRC:         %04x\n", st.CRC)
	return nil
}
