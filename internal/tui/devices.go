// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"spectrum/internal/device"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the device and rate chosen in the picker.
type Selection struct {
	DeviceID   int
	Name       string
	SampleRate float64
}

// DeviceListModel lists input devices and lets the user pick one and a
// sample rate to capture at.
type DeviceListModel struct {
	fetch         func() ([]device.Device, error)
	devices       []device.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
	selection     *Selection

	// Configuration options
	selectedSampleRate   float64
	availableSampleRates []float64
	sampleRateIndex      int
}

// Init starts loading the device list.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{inputsOnly(devices)}
	}
}

func inputsOnly(devices []device.Device) []device.Device {
	var inputs []device.Device
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return inputs
}

type devicesMsg struct {
	devices []device.Device
}

type errMsg struct {
	err error
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Initialize the viewport with the window size
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true

			// If we already have devices, render them now
			if len(m.devices) > 0 {
				m.viewport.SetContent(m.renderDevices())
			}
		} else {
			// Just update viewport dimensions
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg.devices
		if m.ready {
			m.viewport.SetContent(m.renderDevices())
		}

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		// First check for keys that should work everywhere
		if m.err != nil || key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))) {
			return m, tea.Quit
		}

		// Then handle screen-specific keys
		if m.activeScreen == ListScreen {
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.selectedIndex > 0 {
					m.selectedIndex--
					m.viewport.SetContent(m.renderDevices())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
					m.viewport.SetContent(m.renderDevices())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				if len(m.devices) > 0 {
					// Switch to configuration screen
					m.activeScreen = ConfigScreen

					// Start on the device's default rate.
					m.availableSampleRates = []float64{22050, 44100, 48000, 88200, 96000}
					m.sampleRateIndex = 1
					for i, rate := range m.availableSampleRates {
						if rate == m.devices[m.selectedIndex].DefaultSampleRate {
							m.sampleRateIndex = i
							break
						}
					}
					m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]

					// Update viewport to show configuration
					m.viewport.SetContent(m.renderDeviceConfig())
				}
			}
		} else if m.activeScreen == ConfigScreen {
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("esc"))):
				// Return to list screen
				m.activeScreen = ListScreen
				m.viewport.SetContent(m.renderDevices())

			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				d := m.devices[m.selectedIndex]
				m.selection = &Selection{DeviceID: d.ID, Name: d.Name, SampleRate: m.selectedSampleRate}
				return m, tea.Quit

			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
					m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]
					m.viewport.SetContent(m.renderDeviceConfig())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.sampleRateIndex < len(m.availableSampleRates)-1 {
					m.sampleRateIndex++
					m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]
					m.viewport.SetContent(m.renderDeviceConfig())
				}
			}
		}

	}

	// Handle viewport updates
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}

	var title, help string

	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Input Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Select • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list
func (m DeviceListModel) renderDevices() string {
	var sb strings.Builder

	if len(m.devices) == 0 {
		return "No input devices found."
	}

	for i, d := range m.devices {
		// Determine device type
		deviceType := ""
		if d.MaxInputChannels > 0 && d.MaxOutputChannels > 0 {
			deviceType = "Input/Output"
		} else if d.MaxInputChannels > 0 {
			deviceType = "Input"
		} else if d.MaxOutputChannels > 0 {
			deviceType = "Output"
		}

		deviceInfo := fmt.Sprintf("[%d] %s (%s)\n",
			d.ID, d.Name, deviceType)
		deviceInfo += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			d.MaxInputChannels, d.MaxOutputChannels)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n",
			d.DefaultSampleRate)

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}

		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderDeviceConfig formats the device configuration screen
func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	d := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", d.Name)
	sb.WriteString("Sample Rate:\n")

	// Display sample rate options
	for i, rate := range m.availableSampleRates {
		line := fmt.Sprintf("  %s %.0f Hz\n",
			func() string {
				if i == m.sampleRateIndex {
					return "▶"
				}
				return " "
			}(),
			rate)

		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}

		sb.WriteString(line)
	}

	return sb.String()
}

// NewDeviceListModel returns a picker listing the input devices returned
// by fetch.
func NewDeviceListModel(fetch func() ([]device.Device, error)) DeviceListModel {
	return DeviceListModel{
		fetch:         fetch,
		selectedIndex: 0,
		activeScreen:  ListScreen,
	}
}

// Selection returns the user's choice, or nil if they quit without one.
func (m DeviceListModel) Selection() *Selection {
	return m.selection
}

// PickDevice runs the picker full screen over the host's devices.
func PickDevice() (*Selection, error) {
	p := tea.NewProgram(
		NewDeviceListModel(device.Devices),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	if m, ok := final.(DeviceListModel); ok {
		if m.err != nil {
			return nil, m.err
		}
		return m.selection, nil
	}
	return nil, nil
}
