// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"time"

	"spectrum/internal/capture"
	"spectrum/internal/config"
	"spectrum/internal/device"
	"spectrum/internal/listener"
	applog "spectrum/internal/log"
	"spectrum/internal/source"
	"spectrum/internal/transport"
	"spectrum/internal/transport/udp"
	"spectrum/internal/tui"
)

// logInterval paces peak reports when no terminal display is attached.
const logInterval = time.Second

// Pipeline wires one capture loop to its outputs: the terminal viewer or
// the log, the WebSocket broadcaster and the UDP publisher.
type Pipeline struct {
	Loop   *capture.Loop
	Viewer *tui.Viewer // Nil unless the configuration asks for the TUI.

	registry  *listener.Registry
	listener  listener.Listener
	websocket *transport.WebSocket
	sender    *udp.Sender
	publisher *udp.Publisher
	log       applog.Logger
}

// NewPipeline builds every component cfg enables without starting any of
// them. Spectra are published through registry.
func NewPipeline(cfg *config.Config, registry *listener.Registry) (*Pipeline, error) {
	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}

	loop, err := capture.New(cfg.Audio.SampleRate, cfg.Audio.TransformSize, src,
		capture.WithRegistry(registry),
		capture.WithBackoff(cfg.Loop.BackoffInitial, cfg.Loop.BackoffMax),
	)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Loop:     loop,
		registry: registry,
		log:      applog.Named("pipeline"),
	}

	var fanout listener.Fanout
	if cfg.TUI {
		p.Viewer = tui.NewViewer()
		fanout = append(fanout, p.Viewer)
	} else {
		fanout = append(fanout, listener.NewLogger(logInterval))
	}

	if addr := cfg.Transport.WebSocketAddr; addr != "" {
		p.websocket = transport.NewWebSocket(addr, cfg.Transport.WebSocketInterval)
		fanout = append(fanout, p.websocket)
	}

	if target := cfg.Transport.UDPTarget; target != "" {
		if p.sender, err = udp.NewSender(target); err != nil {
			return nil, err
		}
		if p.publisher, err = udp.NewPublisher(cfg.Transport.UDPInterval, p.sender, loop); err != nil {
			p.sender.Close()
			return nil, err
		}
	}

	p.listener = fanout
	return p, nil
}

// newSource selects the sample source named by cfg.Audio.Source.
func newSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Audio.Source {
	case config.SourceSynthetic:
		shape, err := source.ParseShape(cfg.Synthetic.Shape)
		if err != nil {
			return nil, err
		}
		return source.NewSynthetic(source.SyntheticConfig{
			SampleRate:      cfg.Audio.SampleRate,
			Shape:           shape,
			Frequency:       cfg.Synthetic.Frequency,
			SecondFrequency: cfg.Synthetic.SecondFrequency,
			Amplitude:       cfg.Synthetic.Amplitude,
			Noise:           cfg.Synthetic.Noise,
			Seed:            cfg.Synthetic.Seed,
			Realtime:        cfg.Synthetic.Realtime,
		})

	case config.SourceWAV:
		return source.NewWAV(source.WAVConfig{
			Path:       cfg.WAV.Path,
			SampleRate: cfg.Audio.SampleRate,
			Loop:       cfg.WAV.Loop,
		}), nil

	case config.SourceMicrophone:
		return device.NewMicrophone(device.MicrophoneConfig{
			DeviceID:        cfg.Audio.InputDevice,
			SampleRate:      cfg.Audio.SampleRate,
			FramesPerBuffer: cfg.Audio.TransformSize,
			LowLatency:      cfg.Audio.LowLatency,
		}), nil
	}
	return nil, fmt.Errorf("unknown source: '%s'", cfg.Audio.Source)
}

// Start brings the outputs up before the loop so the first spectrum has
// somewhere to go. On failure everything already started is closed again.
func (p *Pipeline) Start() error {
	if p.websocket != nil {
		if err := p.websocket.Start(); err != nil {
			p.Close(0)
			return err
		}
	}

	p.registry.Register(p.listener)

	if p.publisher != nil {
		p.publisher.Start()
	}

	if err := p.Loop.Start(); err != nil {
		p.Close(0)
		return err
	}
	return nil
}

// Close stops the loop, waits up to timeout for its goroutine to exit and
// shuts the outputs down. A zero timeout does not wait.
func (p *Pipeline) Close(timeout time.Duration) error {
	p.registry.Unregister()

	errs := []error{p.Loop.Close()}

	if timeout > 0 {
		select {
		case <-p.Loop.Done():
		case <-time.After(timeout):
			p.log.Warnf("capture loop did not stop within %s", timeout)
		}
	}

	if p.publisher != nil {
		errs = append(errs, p.publisher.Close())
	}
	if p.sender != nil {
		errs = append(errs, p.sender.Close())
	}
	if p.websocket != nil {
		errs = append(errs, p.websocket.Close())
	}

	stats := p.Loop.Stats()
	p.log.Infof("%d cycles, %d spectra, %d read errors, %d malformed blocks",
		stats.Cycles, stats.Spectra, stats.ReadErrors, stats.MalformedBlocks)

	return errors.Join(errs...)
}

// WebSocketAddr is the bound WebSocket address, or "" when disabled.
func (p *Pipeline) WebSocketAddr() string {
	if p.websocket == nil {
		return ""
	}
	return p.websocket.Addr()
}
