// SPDX-License-Identifier: MIT
package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"spectrum/internal/analysis"
)

func newTestSynthetic(t *testing.T, cfg SyntheticConfig) *Synthetic {
	t.Helper()
	s, err := NewSynthetic(cfg)
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    Shape
		wantErr bool
	}{
		{"sine", Sine, false},
		{"", Sine, false},
		{"SQUARE", Square, false},
		{"saw", Sawtooth, false},
		{"dual", DualTone, false},
		{"silence", Silence, false},
		{"triangle", Sine, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseShape(tt.in)
			if got != tt.want || (err != nil) != tt.wantErr {
				t.Errorf("ParseShape(%q) = %v, %v", tt.in, got, err)
			}
			if err == nil && tt.in != "" {
				if again, _ := ParseShape(got.String()); again != got {
					t.Errorf("String() of %v does not parse back", got)
				}
			}
		})
	}
}

func TestNewSyntheticValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SyntheticConfig
	}{
		{"Zero rate", SyntheticConfig{SampleRate: 0, Frequency: 440, Amplitude: 1}},
		{"Above Nyquist", SyntheticConfig{SampleRate: 8000, Frequency: 5000, Amplitude: 1}},
		{"Negative frequency", SyntheticConfig{SampleRate: 8000, Frequency: -1, Amplitude: 1}},
		{"Amplitude too high", SyntheticConfig{SampleRate: 8000, Frequency: 440, Amplitude: 1.5}},
		{"Negative noise", SyntheticConfig{SampleRate: 8000, Frequency: 440, Amplitude: 1, Noise: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSynthetic(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSyntheticReadFillsWholeSamples(t *testing.T) {
	s := newTestSynthetic(t, SyntheticConfig{SampleRate: 44100, Frequency: 440, Amplitude: 1})

	buf := make([]byte, 2049)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2048 {
		t.Errorf("Read returned %d bytes, want 2048", n)
	}
}

func TestSyntheticPhaseContinuity(t *testing.T) {
	cfg := SyntheticConfig{SampleRate: 8000, Frequency: 1000, Amplitude: 0.5}
	split := newTestSynthetic(t, cfg)
	whole := newTestSynthetic(t, cfg)

	a := make([]byte, 64)
	b := make([]byte, 64)
	split.Read(a)
	split.Read(b)

	all := make([]byte, 128)
	whole.Read(all)

	if !bytes.Equal(append(a, b...), all) {
		t.Error("two consecutive reads differ from one read of the same length")
	}
}

func TestSyntheticDeterministicNoise(t *testing.T) {
	cfg := SyntheticConfig{SampleRate: 8000, Frequency: 440, Amplitude: 0.5, Noise: 0.1, Seed: 42}
	a := make([]byte, 256)
	b := make([]byte, 256)
	newTestSynthetic(t, cfg).Read(a)
	newTestSynthetic(t, cfg).Read(b)

	if !bytes.Equal(a, b) {
		t.Error("equal seeds produced different noise")
	}
}

func TestSyntheticShapes(t *testing.T) {
	const rate, size = 44100, 1024

	tests := []struct {
		shape    Shape
		freq     float64
		wantPeak float64
	}{
		{Sine, 1000, 1000},
		{Square, 2000, 2000},
		{Sawtooth, 3000, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.shape.String(), func(t *testing.T) {
			s := newTestSynthetic(t, SyntheticConfig{SampleRate: rate, Shape: tt.shape, Frequency: tt.freq, Amplitude: 0.8})
			e, err := analysis.NewEngine(size, rate)
			if err != nil {
				t.Fatalf("NewEngine: %v", err)
			}
			block := make([]byte, e.BlockSize())
			if _, err := s.Read(block); err != nil {
				t.Fatalf("Read: %v", err)
			}
			if _, err := e.Transform(block); err != nil {
				t.Fatalf("Transform: %v", err)
			}
			peak, _ := e.PeakFrequency()
			if math.Abs(peak-tt.wantPeak) > e.BinWidth() {
				t.Errorf("peak = %.1f Hz, want %.1f ± %.1f", peak, tt.wantPeak, e.BinWidth())
			}
		})
	}
}

func TestSyntheticSilence(t *testing.T) {
	s := newTestSynthetic(t, SyntheticConfig{SampleRate: 8000, Shape: Silence, Frequency: 440, Amplitude: 1})
	buf := make([]byte, 128)
	s.Read(buf)
	for i := 0; i < len(buf); i += 2 {
		if v := int16(binary.LittleEndian.Uint16(buf[i:])); v != 0 {
			t.Fatalf("sample %d = %d, want 0", i/2, v)
		}
	}
}

func TestSyntheticRealtimePacing(t *testing.T) {
	s := newTestSynthetic(t, SyntheticConfig{SampleRate: 8000, Frequency: 440, Amplitude: 1, Realtime: true})

	// 400 samples at 8 kHz is 50ms.
	start := time.Now()
	if _, err := s.Read(make([]byte, 800)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("realtime read returned after %s, want ~50ms", elapsed)
	}
}

func TestSyntheticCloseInterruptsPacing(t *testing.T) {
	s := newTestSynthetic(t, SyntheticConfig{SampleRate: 8000, Frequency: 440, Amplitude: 1, Realtime: true})

	done := make(chan error, 1)
	go func() {
		// 80000 samples is ten seconds of audio.
		_, err := s.Read(make([]byte, 160000))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not interrupt a paced read")
	}

	if _, err := s.Read(make([]byte, 2)); !errors.Is(err, ErrClosed) {
		t.Errorf("read after close: expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
