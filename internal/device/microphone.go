// SPDX-License-Identifier: MIT
/*
Package device captures live audio through PortAudio.

Microphone implements source.Source with a blocking mono 16-bit input stream.
It owns the PortAudio lifecycle: Start initializes the library and opens the
stream, Close stops it and terminates the library again.
*/
package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	applog "spectrum/internal/log"
	"spectrum/internal/source"

	"github.com/gordonklaus/portaudio"
)

// MicrophoneConfig selects the capture device and stream shape.
type MicrophoneConfig struct {
	DeviceID        int     // config.MinDeviceID for the system default.
	SampleRate      float64 // Hz.
	FramesPerBuffer int     // Samples per Read; the loop's transform size.
	LowLatency      bool    // Use the device's low input latency.
}

type Microphone struct {
	cfg MicrophoneConfig
	log applog.Logger

	mu          sync.Mutex
	stream      *portaudio.Stream
	samples     []int16
	latency     time.Duration
	initialized bool
	closed      bool
}

func NewMicrophone(cfg MicrophoneConfig) *Microphone {
	return &Microphone{cfg: cfg, log: applog.Named("microphone")}
}

// Start initializes PortAudio, opens the device and begins capturing.
func (m *Microphone) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return source.ErrClosed
	}
	if m.stream != nil {
		return nil
	}
	if m.cfg.FramesPerBuffer < 1 {
		return fmt.Errorf("microphone: frames per buffer must be positive, got %d", m.cfg.FramesPerBuffer)
	}

	if err := Initialize(); err != nil {
		return err
	}
	m.initialized = true

	if err := m.open(); err != nil {
		m.release()
		return err
	}
	return nil
}

func (m *Microphone) open() error {
	inputDevice, err := InputDevice(m.cfg.DeviceID)
	if err != nil {
		return err
	}

	if m.cfg.LowLatency {
		m.latency = inputDevice.DefaultLowInputLatency
	} else {
		m.latency = inputDevice.DefaultHighInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   inputDevice,
			Latency:  m.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: m.cfg.FramesPerBuffer,
		SampleRate:      m.cfg.SampleRate,
	}

	m.samples = make([]int16, m.cfg.FramesPerBuffer)
	stream, err := portaudio.OpenStream(params, m.samples)
	if err != nil {
		return fmt.Errorf("microphone: opening %s: %w", inputDevice.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("microphone: starting %s: %w", inputDevice.Name, err)
	}
	m.stream = stream

	m.log.Infof("capturing from %s at %.0f Hz, %d frames, latency %s",
		inputDevice.Name, m.cfg.SampleRate, m.cfg.FramesPerBuffer, m.latency)
	return nil
}

// Read blocks until one buffer of samples is available and writes it to buf
// as little-endian int16. An input overflow is logged and the samples that
// were captured are still returned.
func (m *Microphone) Read(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, source.ErrClosed
	}
	if m.stream == nil {
		return 0, source.ErrNotStarted
	}

	if err := m.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return 0, fmt.Errorf("microphone: %w", err)
		}
		m.log.Debugf("input overflowed")
	}

	n := min(len(buf)/2, len(m.samples))
	for i := range n {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(m.samples[i]))
	}
	return n * 2, nil
}

// Close stops the stream and terminates PortAudio. Safe to call more than
// once; a Read in progress completes first.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.release()
}

func (m *Microphone) release() error {
	var errs []error
	if m.stream != nil {
		if err := m.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("microphone: stopping stream: %w", err))
		}
		if err := m.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("microphone: closing stream: %w", err))
		}
		m.stream = nil
	}
	if m.initialized {
		if err := Terminate(); err != nil {
			errs = append(errs, err)
		}
		m.initialized = false
	}
	return errors.Join(errs...)
}

var _ source.Source = (*Microphone)(nil)
