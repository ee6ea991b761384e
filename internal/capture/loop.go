// SPDX-License-Identifier: MIT
/*
Package capture runs the read, transform and notify cycle for one source.

A Loop is built in two phases. New validates the parameters and wires the
engine without starting anything; Start acquires the source and spawns the
single goroutine that owns it:

	loop, err := capture.New(44100, 1024, src)
	if err != nil {
		return err // wraps analysis.ErrInvalidConfig
	}
	if err := loop.Start(); err != nil {
		return err
	}
	defer loop.Close()

Per-cycle failures never stop the goroutine. A failed or empty read
(ErrRead) and a short block (analysis.ErrMalformedInput) are counted, logged
with throttling and followed by a capped exponential back-off; the next
successful cycle resets both. Spectra are delivered in capture order on the
loop goroutine, so listeners must not block.
*/
package capture

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"spectrum/internal/analysis"
	"spectrum/internal/listener"
	applog "spectrum/internal/log"
	"spectrum/internal/source"
	"spectrum/pkg/bitint"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrRead marks a cycle whose source read failed or returned no data.
	ErrRead = errors.New("source read failed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("capture loop already started")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("capture loop closed")
)

// Stats are running counters for one loop.
type Stats struct {
	Cycles          uint64 // Reads attempted.
	Spectra         uint64 // Spectra computed and published.
	ReadErrors      uint64
	MalformedBlocks uint64
}

type Loop struct {
	id       uuid.UUID
	engine   *analysis.Engine
	src      source.Source
	registry *listener.Registry
	log      applog.Logger

	// Reused for every read; only the loop goroutine touches it.
	block    []byte
	sequence uint64
	failures int
	backoff  backoff
	beats    *analysis.BeatDetector // Nil disables onset detection.

	// Lifecycle.
	mu      sync.Mutex
	started bool
	stopped atomic.Bool
	stopCh  chan struct{} // Interrupts back-off sleeps.
	done    chan struct{}

	cycles     atomic.Uint64
	spectra    atomic.Uint64
	readErrors atomic.Uint64
	malformed  atomic.Uint64
}

// New validates sampleRate and transformSize, builds the engine and binds
// src. Nothing runs until Start. Invalid parameters wrap
// analysis.ErrInvalidConfig.
func New(sampleRate float64, transformSize int, src source.Source, opts ...Option) (*Loop, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", analysis.ErrInvalidConfig)
	}
	engine, err := analysis.NewEngine(transformSize, sampleRate)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		id:       uuid.New(),
		engine:   engine,
		src:      src,
		registry: listener.Default,
		log:      applog.Named("capture"),
		block:    make([]byte, engine.BlockSize()),
		backoff:  backoff{initial: DefaultBackoffInitial, max: DefaultBackoffMax},
		beats:    defaultBeatDetector(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Start starts the source and spawns the loop goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped.Load() {
		return ErrClosed
	}
	if l.started {
		return ErrAlreadyStarted
	}
	if err := l.src.Start(); err != nil {
		return fmt.Errorf("starting source: %w", err)
	}
	l.started = true

	l.log.Infof("loop %s started: %d-point transform at %.0f Hz (%.2f Hz/bin)",
		l.id, l.engine.TransformSize(), l.engine.SampleRate(), l.engine.BinWidth())
	go l.run()
	return nil
}

// Close signals the loop to stop and returns without waiting. The goroutine
// exits at the top of its next cycle and releases the source; Done reports
// when that has happened. A loop that was never started releases its source
// immediately. Calling Close more than once is a no-op.
func (l *Loop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped.Swap(true) {
		return nil
	}
	close(l.stopCh)

	if !l.started {
		defer close(l.done)
		return l.src.Close()
	}
	return nil
}

// Done is closed once the loop has stopped and released its source.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer close(l.done)
	defer func() {
		if err := l.src.Close(); err != nil {
			l.log.Warnf("loop %s: closing source: %v", l.id, err)
		}
		l.log.Infof("loop %s stopped after %d spectra", l.id, l.spectra.Load())
	}()

	for !l.stopped.Load() {
		err := l.cycle()
		if err == nil {
			l.failures = 0
			l.backoff.reset()
			continue
		}

		l.failures++
		// 1st, 2nd, 4th, 8th... consecutive failure.
		if bitint.IsPowerOfTwo(l.failures) {
			l.log.Warnf("loop %s: %v (%d consecutive)", l.id, err, l.failures)
		}
		l.sleep(l.backoff.next())
	}
}

// cycle reads one block, transforms it and publishes the result.
func (l *Loop) cycle() error {
	l.cycles.Add(1)

	n, err := l.src.Read(l.block)
	if err != nil {
		l.readErrors.Add(1)
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	if n <= 0 {
		l.readErrors.Add(1)
		return fmt.Errorf("%w: read returned %d bytes", ErrRead, n)
	}

	block := l.block[:n]
	spectrum, err := l.engine.Transform(block)
	if err != nil {
		l.malformed.Add(1)
		return err
	}

	peakHz, _ := l.engine.PeakFrequencyOf(spectrum)
	beat := l.beats != nil && l.beats.Process(analysis.RMSLevel(block))
	l.sequence++
	l.registry.Notify(listener.Frame{
		LoopID:        l.id,
		Sequence:      l.sequence,
		Time:          time.Now(),
		SampleRate:    l.engine.SampleRate(),
		TransformSize: l.engine.TransformSize(),
		Magnitudes:    spectrum,
		PeakHz:        peakHz,
		MaxMagnitude:  floats.Max(spectrum),
		Level:         analysis.PeakLevel(block),
		Beat:          beat,
	})
	l.spectra.Add(1)
	return nil
}

func (l *Loop) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-l.stopCh:
	}
}

// ID identifies the loop in frames and logs.
func (l *Loop) ID() uuid.UUID { return l.id }

// Stats returns a snapshot of the loop's counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:          l.cycles.Load(),
		Spectra:         l.spectra.Load(),
		ReadErrors:      l.readErrors.Load(),
		MalformedBlocks: l.malformed.Load(),
	}
}

// PeakFrequency returns the frequency of the strongest bin of the latest
// spectrum, or analysis.ErrNoData before the first one.
func (l *Loop) PeakFrequency() (float64, error) { return l.engine.PeakFrequency() }

// PeakFrequencyOf applies the same computation to spectrum, using this
// loop's sample rate and transform size.
func (l *Loop) PeakFrequencyOf(spectrum []float64) (float64, error) {
	return l.engine.PeakFrequencyOf(spectrum)
}

// MaxMagnitude returns the largest value of the latest spectrum.
func (l *Loop) MaxMagnitude() (float64, error) { return l.engine.MaxMagnitude() }

func (l *Loop) MagnitudesInto(dest []float64) error { return l.engine.MagnitudesInto(dest) }

func (l *Loop) BinCount() int { return l.engine.BinCount() }

func (l *Loop) SampleRate() float64 { return l.engine.SampleRate() }

func (l *Loop) TransformSize() int { return l.engine.TransformSize() }

var _ analysis.SpectrumProvider = (*Loop)(nil)
