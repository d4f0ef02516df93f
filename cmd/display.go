// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Magnetar Labs

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/magnetar-labs/lodestone/pkg/ssd1306"
)

var (
	dispAddr        int
	dispWidth       int
	dispHeight      int
	dispExternalVCC bool
)

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "SSD1306 OLED display tools",
}

var displayTextCmd = &cobra.Command{
	Use:   "text <message>...",
	Short: "Show a text message on the display",
	Long: `Render a message with the built-in 5x8 font and push it to the
panel. Arguments are joined with spaces; text wraps at the right edge.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDisplayText,
}

var displayDemoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Draw a test pattern",
	RunE:  runDisplayDemo,
}

func init() {
	displayCmd.PersistentFlags().IntVar(&dispAddr, "addr", ssd1306.DefaultAddr, "I2C address of the display")
	displayCmd.PersistentFlags().IntVar(&dispWidth, "width", 128, "Panel width in pixels")
	displayCmd.PersistentFlags().IntVar(&dispHeight, "height", 64, "Panel height in pixels")
	displayCmd.PersistentFlags().BoolVar(&dispExternalVCC, "external-vcc", false, "Panel is powered externally (no charge pump)")

	displayCmd.AddCommand(displayTextCmd)
	displayCmd.AddCommand(displayDemoCmd)
	rootCmd.AddCommand(displayCmd)
}

func newDisplay() (*ssd1306.Device, func(), error) {
	tun, _, err := openTunnel()
	if err != nil {
		return nil, nil, err
	}

	dev, err := ssd1306.New(tun, ssd1306.Opts{
		Addr:        byte(dispAddr),
		Width:       dispWidth,
		Height:      dispHeight,
		ExternalVCC: dispExternalVCC,
	})
	if err != nil {
		tun.Disconnect()
		return nil, nil, err
	}
	if err := dev.Startup(); err != nil {
		tun.Disconnect()
		return nil, nil, err
	}
	return dev, func() { tun.Disconnect() }, nil
}

func runDisplayText(cmd *cobra.Command, args []string) error {
	dev, closeTunnel, err := newDisplay()
	if err != nil {
		return err
	}
	defer closeTunnel()

	dev.Clear()
	dev.Text(0, 0, strings.Join(args, " "), nil, true)
	if err := dev.Display(); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runDisplayDemo(cmd *cobra.Command, args []string) error {
	dev, closeTunnel, err := newDisplay()
	if err != nil {
		return err
	}
	defer closeTunnel()

	w, h := dev.Width(), dev.Height()

	dev.Clear()
	dev.Rect(0, 0, w, h, false, true)
	dev.Line(0, 0, w-1, h-1, true)
	dev.Line(w-1, 0, 0, h-1, true)
	dev.Circle(w/2, h/2, h/4, true)
	dev.Arc(w/2, h/2, h/3, 200, 340, true)
	dev.Text(4, 4, "lodestone", nil, true)

	if err := dev.Display(); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}
