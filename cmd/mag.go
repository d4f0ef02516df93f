// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Magnetar Labs

package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/magnetar-labs/lodestone/pkg/hmc5883"
	"github.com/magnetar-labs/lodestone/pkg/i2cbridge"
)

var (
	magGain        int
	magAverage     int
	magDeclination float64
	magCalFile     string

	magReadCount int
	magCalOut    string
)

var magCmd = &cobra.Command{
	Use:   "mag",
	Short: "HMC5883L magnetometer tools",
	Long: `Read, monitor and calibrate an HMC5883L three-axis magnetometer
attached to the bridge's I2C bus.

A calibration record produced by "mag calibrate --out" can be applied
to any command with --cal.`,
}

var magReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Print calibrated field readings",
	RunE:  runMagRead,
}

var magWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live field readout (interactive)",
	RunE:  runMagWatch,
}

var magCalibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run the self-test calibration procedure (interactive)",
	Long: `Calibrate the magnetometer: gain errors are estimated against the
device's self-test field, then offsets are derived from a 60 second
min/max sweep. Rotate the sensor through all orientations during the
sweep. Press q to stop the sweep early.`,
	RunE: runMagCalibrate,
}

func init() {
	magCmd.PersistentFlags().IntVar(&magGain, "gain", int(hmc5883.Gain1Ga3), "Gain code 0-7 (0 = most sensitive)")
	magCmd.PersistentFlags().IntVar(&magAverage, "average", 8, "Samples averaged per reading (1, 2, 4 or 8)")
	magCmd.PersistentFlags().Float64Var(&magDeclination, "declination", 0, "Magnetic declination in degrees")
	magCmd.PersistentFlags().StringVar(&magCalFile, "cal", "", "Calibration record to apply (CBOR file)")

	magReadCmd.Flags().IntVarP(&magReadCount, "count", "n", 1, "Number of readings")
	magCalibrateCmd.Flags().StringVarP(&magCalOut, "out", "o", "", "Write the calibration record here (CBOR)")

	magCmd.AddCommand(magReadCmd)
	magCmd.AddCommand(magWatchCmd)
	magCmd.AddCommand(magCalibrateCmd)
	rootCmd.AddCommand(magCmd)
}

// newMagDevice builds and initializes the driver from the mag flags.
func newMagDevice(tun *i2cbridge.Tunnel) (*hmc5883.Device, error) {
	opts := hmc5883.Opts{
		Averaging:   hmc5883.Averaging(magAverage),
		Rate:        hmc5883.Rate15Hz,
		Gain:        hmc5883.Gain(magGain),
		Mode:        hmc5883.ModeContinuous,
		Declination: magDeclination,
	}
	if magCalFile != "" {
		cal, err := hmc5883.LoadCalibration(magCalFile)
		if err != nil {
			return nil, err
		}
		opts.Calibration = &cal
	}

	dev, err := hmc5883.New(tun, opts)
	if err != nil {
		return nil, err
	}
	if err := dev.Init(); err != nil {
		return nil, err
	}
	return dev, nil
}

func formatAxis(v float64) string {
	if math.IsNaN(v) {
		return "saturated"
	}
	return fmt.Sprintf("%8.1f mGa", v)
}

func runMagRead(cmd *cobra.Command, args []string) error {
	tun, _, err := openTunnel()
	if err != nil {
		return err
	}
	defer tun.Disconnect()

	dev, err := newMagDevice(tun)
	if err != nil {
		return err
	}

	for i := 0; i < magReadCount; i++ {
		r, err := dev.CalibratedValues()
		if err != nil {
			return err
		}
		fmt.Printf("X %s  Y %s  Z %s  heading %5.1f°\n",
			formatAxis(r.X), formatAxis(r.Y), formatAxis(r.Z),
			dev.Heading(r)*180/math.Pi)
	}
	return nil
}

func runMagCalibrate(cmd *cobra.Command, args []string) error {
	tun, _, err := openTunnel()
	if err != nil {
		return err
	}
	defer tun.Disconnect()

	dev, err := newMagDevice(tun)
	if err != nil {
		return err
	}

	cal, err := runCalibrateTUI(dev)
	if err != nil {
		return err
	}

	fmt.Printf("Offsets: X %.1f  Y %.1f  Z %.1f mGa\n", cal.OffsetX, cal.OffsetY, cal.OffsetZ)
	fmt.Printf("Gains:   X %.4f  Y %.4f  Z %.4f\n", cal.GainX, cal.GainY, cal.GainZ)

	if magCalOut != "" {
		if err := cal.Save(magCalOut); err != nil {
			return err
		}
		fmt.Printf("Calibration written to %s\n", magCalOut)
	}
	return nil
}

func runMagWatch(cmd *cobra.Command, args []string) error {
	tun, _, err := openTunnel()
	if err != nil {
		return err
	}
	defer tun.Disconnect()

	dev, err := newMagDevice(tun)
	if err != nil {
		return err
	}

	return runWatchTUI(dev)
}
