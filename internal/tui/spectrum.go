// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"spectrum/internal/listener"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 33 * time.Millisecond // ~30 fps
	floorDB         = -80.0
	chromeLines     = 7 // Title, stats, bands, help and spacing.
)

var barGlyphs = []rune(" ▁▂▃▄▅▆▇█")

var (
	barStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	peakStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F25D94")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

// Viewer is a listener that keeps only the newest frame. The terminal UI
// polls it on its own refresh tick, so the capture loop never waits on
// rendering.
type Viewer struct {
	latest atomic.Pointer[listener.Frame]
}

func NewViewer() *Viewer { return &Viewer{} }

func (v *Viewer) OnSpectrum(frame listener.Frame) {
	v.latest.Store(&frame)
}

// Latest returns the newest frame, or false if none has arrived.
func (v *Viewer) Latest() (listener.Frame, bool) {
	f := v.latest.Load()
	if f == nil {
		return listener.Frame{}, false
	}
	return *f, true
}

var _ listener.Listener = (*Viewer)(nil)

type keyMap struct {
	Pause  key.Binding
	Linear key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Pause, k.Linear, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var spectrumKeys = keyMap{
	Pause:  key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause")),
	Linear: key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "linear/dB")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// SpectrumModel is the Bubble Tea model drawing the viewer's frames as a
// bar chart.
type SpectrumModel struct {
	viewer *Viewer
	title  string
	keys   keyMap
	help   help.Model

	width  int
	height int
	frame  listener.Frame
	has    bool
	paused bool
	linear bool
}

func NewSpectrumModel(viewer *Viewer, title string) SpectrumModel {
	return SpectrumModel{
		viewer: viewer,
		title:  title,
		keys:   spectrumKeys,
		help:   help.New(),
	}
}

func (m SpectrumModel) Init() tea.Cmd {
	return tick()
}

func (m SpectrumModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		if !m.paused {
			m.frame, m.has = m.viewer.Latest()
		}
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Linear):
			m.linear = !m.linear
		}
	}
	return m, nil
}

func (m SpectrumModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	if !m.has {
		sb.WriteString(infoStyle.Render("Waiting for audio..."))
		sb.WriteString("\n\n")
		sb.WriteString(m.help.View(m.keys))
		return sb.String()
	}

	f := m.frame
	status := ""
	if f.Beat {
		status += peakStyle.Render(" ●")
	}
	if m.paused {
		status += peakStyle.Render(" [paused]")
	}
	fmt.Fprintf(&sb, "%s  max %.3f  level %s  #%d%s\n",
		peakStyle.Render(fmt.Sprintf("peak %7.1f Hz", f.PeakHz)),
		f.MaxMagnitude, levelMeter(f.Level, 20), f.Sequence, status)

	sb.WriteString(barStyle.Render(m.renderBars(m.width, max(m.height-chromeLines, 1))))
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(fmt.Sprintf("0 Hz%*s%.0f Hz", max(m.width-16, 1), "", f.SampleRate/2)))
	sb.WriteString("\n")

	var bands []string
	for _, b := range f.Bands() {
		bands = append(bands, fmt.Sprintf("%s %.3f", b.Name, b.Energy))
	}
	sb.WriteString(infoStyle.Render(strings.Join(bands, "  ")))
	sb.WriteString("\n\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

// columns reduces the spectrum to width values, each the maximum of the
// bins it covers, scaled to 0..1. The DC bin is skipped.
func (m SpectrumModel) columns(width int) []float64 {
	mags := m.frame.Magnitudes
	if len(mags) < 2 || width < 1 {
		return nil
	}
	bins := mags[1:]
	width = min(width, len(bins))

	cols := make([]float64, width)
	for c := range cols {
		lo := c * len(bins) / width
		hi := max((c+1)*len(bins)/width, lo+1)
		peak := 0.0
		for _, v := range bins[lo:hi] {
			peak = max(peak, v)
		}
		cols[c] = m.scale(peak)
	}
	return cols
}

func (m SpectrumModel) scale(v float64) float64 {
	if m.linear {
		return math.Min(v, 1)
	}
	if v <= 0 {
		return 0
	}
	db := 20 * math.Log10(v)
	return math.Max(0, math.Min(1, (db-floorDB)/-floorDB))
}

// renderBars draws the spectrum as rows of block glyphs, top row first.
func (m SpectrumModel) renderBars(width, rows int) string {
	cols := m.columns(width)
	var sb strings.Builder
	steps := len(barGlyphs) - 1

	for r := rows - 1; r >= 0; r-- {
		for _, v := range cols {
			// Eighths of a row filled above row r.
			fill := int(math.Round(v*float64(rows*steps))) - r*steps
			sb.WriteRune(barGlyphs[max(0, min(fill, steps))])
		}
		if r > 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func levelMeter(level float64, width int) string {
	n := int(math.Round(math.Max(0, math.Min(1, level)) * float64(width)))
	return "[" + strings.Repeat("#", n) + strings.Repeat(" ", width-n) + "]"
}

// RunSpectrum shows the viewer full screen until the user quits.
func RunSpectrum(viewer *Viewer, title string) error {
	p := tea.NewProgram(NewSpectrumModel(viewer, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
