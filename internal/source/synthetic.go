// SPDX-License-Identifier: MIT
package source

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Shape selects the waveform produced by a Synthetic source.
type Shape int

const (
	Sine Shape = iota
	Square
	Sawtooth
	DualTone // Frequency plus a second tone at SecondFrequency, half amplitude each.
	Silence
)

// String returns the lower-case name used in configuration.
func (s Shape) String() string {
	switch s {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case DualTone:
		return "dual"
	case Silence:
		return "silence"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape converts a configuration name (case-insensitive) to a Shape.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sine", "":
		return Sine, nil
	case "square":
		return Square, nil
	case "sawtooth", "saw":
		return Sawtooth, nil
	case "dual", "dualtone":
		return DualTone, nil
	case "silence", "silent":
		return Silence, nil
	default:
		return Sine, fmt.Errorf("unknown signal shape: '%s'", name)
	}
}

// SyntheticConfig describes the generated signal.
type SyntheticConfig struct {
	SampleRate      float64 // Hz.
	Shape           Shape
	Frequency       float64 // Hz.
	SecondFrequency float64 // Hz, DualTone only.
	Amplitude       float64 // 0..1 of full scale.
	Noise           float64 // Uniform noise amplitude, 0..1 of full scale.
	Seed            uint64  // Noise seed; equal seeds give equal output.
	Realtime        bool    // Pace reads to the sample rate.
}

// Synthetic generates a continuous test signal. Phase carries over between
// reads, so consecutive blocks join without discontinuities.
type Synthetic struct {
	cfg    SyntheticConfig
	mu     sync.Mutex
	index  uint64
	rng    *rand.Rand
	closed chan struct{}
	once   sync.Once
}

// NewSynthetic validates cfg and returns a generator.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if !(cfg.SampleRate > 0) {
		return nil, fmt.Errorf("synthetic source: sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.Frequency < 0 || cfg.Frequency > cfg.SampleRate/2 {
		return nil, fmt.Errorf("synthetic source: frequency %.1f Hz outside [0, %.1f]", cfg.Frequency, cfg.SampleRate/2)
	}
	if cfg.Amplitude < 0 || cfg.Amplitude > 1 || cfg.Noise < 0 || cfg.Noise > 1 {
		return nil, fmt.Errorf("synthetic source: amplitude and noise must be within [0, 1]")
	}
	return &Synthetic{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		closed: make(chan struct{}),
	}, nil
}

// Start is a no-op; the generator has no device to open.
func (s *Synthetic) Start() error { return nil }

// Read fills buf with whole samples. A trailing odd byte is left untouched.
// In realtime mode Read sleeps for the duration of the block it returns,
// waking early if the source is closed.
func (s *Synthetic) Read(buf []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, ErrClosed
	default:
	}

	n := len(buf) / 2
	s.mu.Lock()
	for i := range n {
		v := s.sample(s.index + uint64(i))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	s.index += uint64(n)
	s.mu.Unlock()

	if s.cfg.Realtime && n > 0 {
		d := time.Duration(float64(n) / s.cfg.SampleRate * float64(time.Second))
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.closed:
			return 0, ErrClosed
		}
	}
	return n * 2, nil
}

func (s *Synthetic) sample(i uint64) int16 {
	t := float64(i) / s.cfg.SampleRate
	phase := s.cfg.Frequency * t
	phase -= math.Floor(phase)

	var v float64
	switch s.cfg.Shape {
	case Sine:
		v = math.Sin(2 * math.Pi * phase)
	case Square:
		if phase < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case Sawtooth:
		v = 2*phase - 1
	case DualTone:
		v = 0.5*math.Sin(2*math.Pi*phase) + 0.5*math.Sin(2*math.Pi*s.cfg.SecondFrequency*t)
	case Silence:
		v = 0
	}
	v *= s.cfg.Amplitude
	if s.cfg.Noise > 0 {
		v += (s.rng.Float64()*2 - 1) * s.cfg.Noise
	}

	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * math.MaxInt16))
}

// Close stops any pending realtime wait; later reads return ErrClosed.
func (s *Synthetic) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

var _ Source = (*Synthetic)(nil)
