// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Magnetar Labs

package cmd

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/magnetar-labs/lodestone/pkg/hmc5883"
)

//////////////////////////////////////////////////////////////
// Styles
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)

func axisCell(v float64) string {
	if math.IsNaN(v) {
		return warnStyle.Render("saturated")
	}
	return valueStyle.Render(fmt.Sprintf("%9.1f", v))
}

//////////////////////////////////////////////////////////////
// Watch TUI
//////////////////////////////////////////////////////////////

type watchReadingMsg hmc5883.Reading

type watchModel struct {
	dev      *hmc5883.Device
	readings chan hmc5883.Reading
	last     hmc5883.Reading
	count    int
	quitting bool
}

func waitForReading(ch chan hmc5883.Reading) tea.Cmd {
	return func() tea.Msg {
		return watchReadingMsg(<-ch)
	}
}

func (m watchModel) Init() tea.Cmd {
	return waitForReading(m.readings)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case watchReadingMsg:
		m.last = hmc5883.Reading(msg)
		m.count++
		return m, waitForReading(m.readings)
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	s := titleStyle.Render("Magnetometer") + "\n"
	s += fmt.Sprintf("%s %s\n", labelStyle.Render("X:"), axisCell(m.last.X))
	s += fmt.Sprintf("%s %s\n", labelStyle.Render("Y:"), axisCell(m.last.Y))
	s += fmt.Sprintf("%s %s\n", labelStyle.Render("Z:"), axisCell(m.last.Z))
	s += fmt.Sprintf("%s %s\n",
		labelStyle.Render("Heading:"),
		valueStyle.Render(fmt.Sprintf("%5.1f°", m.dev.Heading(m.last)*180/math.Pi)))
	s += fmt.Sprintf("%s %d\n", labelStyle.Render("Samples:"), m.count)
	s += helpStyle.Render("q: quit")
	return s
}

// runWatchTUI streams calibrated readings into a live view until the
// user quits.
func runWatchTUI(dev *hmc5883.Device) error {
	readings := make(chan hmc5883.Reading, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev.StartContinuousReader(ctx, func(r hmc5883.Reading) {
		select {
		case readings <- r:
		default: // drop when the UI lags, the next sample supersedes it
		}
	})
	defer dev.StopContinuousReader()

	m := watchModel{dev: dev, readings: readings}
	_, err := tea.NewProgram(m).Run()
	return err
}

//////////////////////////////////////////////////////////////
// Calibration TUI
//////////////////////////////////////////////////////////////

const calSweepWindow = 60 * time.Second

type calProgressMsg struct {
	min, max hmc5883.Reading
}

type calDoneMsg struct {
	cal hmc5883.Calibration
	err error
}

type calTickMsg time.Time

type calModel struct {
	dev    *hmc5883.Device
	events chan tea.Msg
	prog   progress.Model

	sweepStart time.Time // zero until the sweep phase reports progress
	min, max   hmc5883.Reading
	done       bool
	result     calDoneMsg
}

func waitForCalEvent(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func calTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return calTickMsg(t)
	})
}

func (m calModel) Init() tea.Cmd {
	return tea.Batch(waitForCalEvent(m.events), calTick())
}

func (m calModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// Aborting waits for the procedure to wind down, so it must
			// not run on the update loop.
			go m.dev.AbortCalibration()
			return m, nil
		}

	case calProgressMsg:
		if m.sweepStart.IsZero() {
			m.sweepStart = time.Now()
		}
		m.min, m.max = msg.min, msg.max
		return m, waitForCalEvent(m.events)

	case calDoneMsg:
		m.done = true
		m.result = msg
		return m, tea.Quit

	case calTickMsg:
		return m, calTick()
	}
	return m, nil
}

func (m calModel) View() string {
	if m.done {
		return ""
	}

	s := titleStyle.Render("Magnetometer Calibration") + "\n"

	if m.sweepStart.IsZero() {
		s += labelStyle.Render("Measuring self-test gain...") + "\n"
		s += helpStyle.Render("q: abort")
		return s
	}

	elapsed := time.Since(m.sweepStart)
	pct := float64(elapsed) / float64(calSweepWindow)
	if pct > 1 {
		pct = 1
	}

	s += labelStyle.Render("Rotate the sensor through all orientations") + "\n\n"
	s += m.prog.ViewAs(pct) + "\n\n"
	s += fmt.Sprintf("%s %s / %s\n", labelStyle.Render("min/max X:"), axisCell(m.min.X), axisCell(m.max.X))
	s += fmt.Sprintf("%s %s / %s\n", labelStyle.Render("min/max Y:"), axisCell(m.min.Y), axisCell(m.max.Y))
	s += fmt.Sprintf("%s %s / %s\n", labelStyle.Render("min/max Z:"), axisCell(m.min.Z), axisCell(m.max.Z))
	s += helpStyle.Render("q: finish early")
	return s
}

// runCalibrateTUI drives the calibration procedure with a progress view
// and returns the resulting record.
func runCalibrateTUI(dev *hmc5883.Device) (hmc5883.Calibration, error) {
	events := make(chan tea.Msg, 8)

	go func() {
		cal, err := dev.StartCalibration(context.Background(), func(min, max hmc5883.Reading) {
			select {
			case events <- calProgressMsg{min, max}:
			default:
			}
		})
		events <- calDoneMsg{cal, err}
	}()

	m := calModel{
		dev:    dev,
		events: events,
		prog:   progress.New(progress.WithDefaultGradient()),
	}
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return hmc5883.Calibration{}, err
	}

	res := final.(calModel).result
	return res.cal, res.err
}
