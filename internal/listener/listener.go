// SPDX-License-Identifier: MIT
/*
Package listener decouples capture loops from whatever consumes their spectra.

A Registry holds at most one Listener. Loops call Notify once per computed
spectrum, synchronously on their own goroutine, so listeners must return
quickly or hand the frame off to their own goroutine. With nothing registered
Notify is a no-op.

Default is the process-wide slot shared by every loop that was not given its
own Registry:

	listener.Register(listener.Func(func(f listener.Frame) {
		fmt.Println(f.PeakHz)
	}))
	defer listener.Unregister()
*/
package listener

import (
	"sync/atomic"
	"time"

	"spectrum/internal/analysis"

	"github.com/google/uuid"
)

// Frame is one computed spectrum plus the scalars derived from it.
// Magnitudes is a snapshot owned by the receiver; it is never written again
// by the loop that produced it.
type Frame struct {
	LoopID        uuid.UUID
	Sequence      uint64
	Time          time.Time
	SampleRate    float64
	TransformSize int
	Magnitudes    []float64
	PeakHz        float64 // Frequency of the strongest bin.
	MaxMagnitude  float64 // Value of the strongest bin.
	Level         float64 // Time-domain peak of the block, 0..1.
	Beat          bool    // The block is an energy onset.
}

// BinWidth is the spacing between bins in Hz.
func (f Frame) BinWidth() float64 {
	if f.TransformSize == 0 {
		return 0
	}
	return f.SampleRate / float64(f.TransformSize)
}

// Bands reduces the frame to analysis.DefaultBands.
func (f Frame) Bands() []analysis.BandEnergy {
	return analysis.BandEnergies(f.Magnitudes, f.BinWidth(), analysis.DefaultBands)
}

// Listener receives spectra from a capture loop.
type Listener interface {
	OnSpectrum(frame Frame)
}

// Func adapts a plain function to the Listener interface.
type Func func(frame Frame)

// OnSpectrum calls f(frame).
func (f Func) OnSpectrum(frame Frame) { f(frame) }

// Fanout delivers each frame to every listener in order.
type Fanout []Listener

// OnSpectrum forwards frame to each non-nil listener.
func (fo Fanout) OnSpectrum(frame Frame) {
	for _, l := range fo {
		if l != nil {
			l.OnSpectrum(frame)
		}
	}
}

// slot boxes the interface so it can live behind an atomic.Pointer.
type slot struct {
	listener Listener
}

// Registry is a single-slot listener registration safe for concurrent
// Register, Unregister and Notify calls.
type Registry struct {
	current atomic.Pointer[slot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register replaces the registered listener. A nil listener clears the slot.
func (r *Registry) Register(l Listener) {
	if l == nil {
		r.current.Store(nil)
		return
	}
	r.current.Store(&slot{listener: l})
}

// Unregister clears the slot; later frames are dropped silently.
func (r *Registry) Unregister() {
	r.current.Store(nil)
}

// Current returns the registered listener, or nil.
func (r *Registry) Current() Listener {
	if s := r.current.Load(); s != nil {
		return s.listener
	}
	return nil
}

// Notify hands frame to the registered listener on the calling goroutine and
// reports whether anyone received it.
func (r *Registry) Notify(frame Frame) bool {
	s := r.current.Load()
	if s == nil {
		return false
	}
	s.listener.OnSpectrum(frame)
	return true
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Register sets the listener of the Default registry.
func Register(l Listener) { Default.Register(l) }

// Unregister clears the Default registry.
func Unregister() { Default.Unregister() }

// Notify delivers frame through the Default registry.
func Notify(frame Frame) bool { return Default.Notify(frame) }
