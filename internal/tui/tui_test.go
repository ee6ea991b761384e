// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"spectrum/internal/device"
	"spectrum/internal/listener"

	tea "github.com/charmbracelet/bubbletea"
)

func sizedSpectrumModel(v *Viewer) SpectrumModel {
	m, _ := NewSpectrumModel(v, "spectrum").Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m.(SpectrumModel)
}

func peakFrame() listener.Frame {
	mags := make([]float64, 513)
	mags[256] = 1
	return listener.Frame{
		Sequence:      4,
		SampleRate:    44100,
		TransformSize: 1024,
		Magnitudes:    mags,
		PeakHz:        11025,
		MaxMagnitude:  1,
		Level:         0.5,
		Beat:          true,
	}
}

func TestViewerKeepsLatest(t *testing.T) {
	v := NewViewer()
	if _, ok := v.Latest(); ok {
		t.Fatal("new viewer should be empty")
	}
	v.OnSpectrum(listener.Frame{Sequence: 1})
	v.OnSpectrum(listener.Frame{Sequence: 2})
	if f, ok := v.Latest(); !ok || f.Sequence != 2 {
		t.Errorf("Latest = %d, %v; want 2, true", f.Sequence, ok)
	}
}

func TestSpectrumModelWaitsForData(t *testing.T) {
	m := sizedSpectrumModel(NewViewer())
	next, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if !strings.Contains(next.View(), "Waiting for audio") {
		t.Errorf("unexpected view:\n%s", next.View())
	}
}

func TestSpectrumModelRendersFrame(t *testing.T) {
	v := NewViewer()
	v.OnSpectrum(peakFrame())
	next, _ := sizedSpectrumModel(v).Update(tickMsg(time.Now()))

	view := next.View()
	for _, want := range []string{"11025.0 Hz", "#4", "●", "22050 Hz", "treble"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestSpectrumModelPause(t *testing.T) {
	v := NewViewer()
	v.OnSpectrum(listener.Frame{Sequence: 1})
	m := sizedSpectrumModel(v)
	next, _ := m.Update(tickMsg(time.Now()))

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	v.OnSpectrum(listener.Frame{Sequence: 2})
	next, _ = next.Update(tickMsg(time.Now()))

	if got := next.(SpectrumModel).frame.Sequence; got != 1 {
		t.Errorf("paused model advanced to frame %d", got)
	}
}

func TestSpectrumModelQuit(t *testing.T) {
	m := sizedSpectrumModel(NewViewer())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestRenderBars(t *testing.T) {
	m := SpectrumModel{frame: peakFrame(), linear: true}

	out := m.renderBars(64, 4)
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d rows, want 4", len(lines))
	}
	for i, line := range lines {
		if n := len([]rune(line)); n != 64 {
			t.Errorf("row %d has %d columns, want 64", i, n)
		}
	}
	// Only the column holding bin 256 reaches the top row.
	if got := strings.Count(lines[0], "█"); got != 1 {
		t.Errorf("top row has %d full blocks, want 1:\n%s", got, out)
	}
}

func TestScaleDecibels(t *testing.T) {
	m := SpectrumModel{}
	tests := []struct {
		in, want float64
	}{
		{1, 1},
		{0.01, 0.5}, // -40 dB
		{1e-5, 0},   // below the floor
		{0, 0},
	}
	for _, tt := range tests {
		if got := m.scale(tt.in); got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("scale(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

var testDevices = []device.Device{
	{ID: 0, Name: "Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
	{ID: 1, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
	{ID: 2, Name: "Interface", MaxInputChannels: 2, DefaultSampleRate: 96000},
}

func send(t *testing.T, m tea.Model, msgs ...tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		m, cmd = m.Update(msg)
	}
	return m, cmd
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func TestDeviceListPicksInputAndRate(t *testing.T) {
	m := NewDeviceListModel(func() ([]device.Device, error) { return testDevices, nil })
	msg := m.Init()()

	final, cmd := send(t, m,
		tea.WindowSizeMsg{Width: 80, Height: 24},
		msg,
		keyMsg("down"),  // Interface; Speakers is filtered out
		keyMsg("enter"), // configure at its default 96000
		keyMsg("enter"), // select
	)
	if cmd == nil {
		t.Fatal("expected quit after selection")
	}

	sel := final.(DeviceListModel).Selection()
	if sel == nil {
		t.Fatal("no selection")
	}
	if sel.DeviceID != 2 || sel.SampleRate != 96000 {
		t.Errorf("selection = %+v, want device 2 at 96000", sel)
	}
}

func TestDeviceListError(t *testing.T) {
	m := NewDeviceListModel(func() ([]device.Device, error) { return nil, errors.New("no portaudio") })
	final, _ := send(t, m, tea.WindowSizeMsg{Width: 80, Height: 24}, m.Init()())

	if !strings.Contains(final.View(), "no portaudio") {
		t.Errorf("error not shown:\n%s", final.View())
	}
	if _, cmd := final.Update(keyMsg("x")); cmd == nil {
		t.Error("any key should quit after an error")
	}
}
