// SPDX-License-Identifier: MIT
package analysis

import (
	"encoding/binary"
	"fmt"
	"math/cmplx"
	"sync"

	"spectrum/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// BytesPerSample is the width of one mono 16-bit PCM sample.
const BytesPerSample = 2

// MinTransformSize is the smallest block a Hann window can be built for.
const MinTransformSize = 2

// pcmScale maps int16 samples onto [-1.0, 1.0).
const pcmScale = 1.0 / 32768.0

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // Windowed, scaled input samples.
	fftOutput []complex128 // FFT complex results.
	magnitude []float64    // Normalized magnitudes of the last block.
	window    []float64    // Hann coefficients.
	valid     bool         // Set once magnitude holds a real spectrum.
	mu        sync.RWMutex // Guards magnitude and valid.
}

// Engine turns blocks of 16-bit little-endian mono PCM into normalized
// magnitude spectra and answers peak queries against the latest one.
//
// Magnitudes are scaled by 2/sum(window), so a full-scale sinusoid that
// falls on a bin centre reads 1.0 and silence reads exactly 0. The window is
// a fixed Hann window. Blocks are never zero-padded or truncated.
type Engine struct {
	fftCalculator *fourier.FFT
	transformSize int
	sampleRate    float64
	scale         float64
	workspace     fftWorkspace
}

// NewEngine validates the parameters and pre-allocates all transform state.
// transformSize must be a power of two of at least MinTransformSize and
// sampleRate positive.
func NewEngine(transformSize int, sampleRate float64) (*Engine, error) {
	if transformSize < MinTransformSize || !bitint.IsPowerOfTwo(transformSize) {
		return nil, fmt.Errorf("%w: transform size must be a positive power of 2, got %d (try %d)",
			ErrInvalidConfig, transformSize, bitint.NextPowerOfTwo(transformSize))
	}
	// Catches NaN as well as non-positive rates.
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %f", ErrInvalidConfig, sampleRate)
	}

	coeffs := make([]float64, transformSize)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	window.Hann(coeffs)

	scale := 0.0
	if sum := floats.Sum(coeffs); sum > 0 {
		scale = 2.0 / sum
	}

	bins := transformSize/2 + 1
	return &Engine{
		fftCalculator: fourier.NewFFT(transformSize),
		transformSize: transformSize,
		sampleRate:    sampleRate,
		scale:         scale,
		workspace: fftWorkspace{
			input:     make([]float64, transformSize),
			fftOutput: make([]complex128, bins),
			magnitude: make([]float64, bins),
			window:    coeffs,
		},
	}, nil
}

// Transform windows the block, runs the FFT and stores the normalized
// magnitudes as the engine's latest spectrum. The returned slice is a copy
// owned by the caller.
//
// The block must be exactly BlockSize() bytes; anything else fails with
// ErrMalformedInput and leaves the previous spectrum untouched.
func (e *Engine) Transform(block []byte) ([]float64, error) {
	if len(block) != e.BlockSize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedInput, len(block), e.BlockSize())
	}

	e.workspace.mu.Lock()
	defer e.workspace.mu.Unlock()

	for i := range e.transformSize {
		sample := int16(binary.LittleEndian.Uint16(block[i*BytesPerSample:]))
		e.workspace.input[i] = float64(sample) * pcmScale * e.workspace.window[i]
	}

	e.fftCalculator.Coefficients(e.workspace.fftOutput, e.workspace.input)
	for i, c := range e.workspace.fftOutput {
		e.workspace.magnitude[i] = cmplx.Abs(c) * e.scale
	}
	e.workspace.valid = true

	snapshot := make([]float64, len(e.workspace.magnitude))
	copy(snapshot, e.workspace.magnitude)
	return snapshot, nil
}

// PeakFrequency returns the frequency (Hz) of the strongest bin of the latest
// spectrum. Ties resolve to the lowest frequency.
func (e *Engine) PeakFrequency() (float64, error) {
	e.workspace.mu.RLock()
	defer e.workspace.mu.RUnlock()

	if !e.workspace.valid {
		return 0, ErrNoData
	}
	return e.binFrequency(floats.MaxIdx(e.workspace.magnitude)), nil
}

// PeakFrequencyOf applies the peak computation to a caller-supplied
// spectrum. It does not touch engine state.
func (e *Engine) PeakFrequencyOf(spectrum []float64) (float64, error) {
	if len(spectrum) == 0 {
		return 0, ErrNoData
	}
	return e.binFrequency(floats.MaxIdx(spectrum)), nil
}

// MaxMagnitude returns the largest value of the latest spectrum.
func (e *Engine) MaxMagnitude() (float64, error) {
	e.workspace.mu.RLock()
	defer e.workspace.mu.RUnlock()

	if !e.workspace.valid {
		return 0, ErrNoData
	}
	return floats.Max(e.workspace.magnitude), nil
}

// Magnitudes returns a copy of the latest spectrum, or nil if none exists.
func (e *Engine) Magnitudes() []float64 {
	e.workspace.mu.RLock()
	defer e.workspace.mu.RUnlock()

	if !e.workspace.valid {
		return nil
	}
	magCopy := make([]float64, len(e.workspace.magnitude))
	copy(magCopy, e.workspace.magnitude)
	return magCopy
}

// MagnitudesInto copies the latest spectrum into dest without allocating.
// dest must have BinCount() elements.
func (e *Engine) MagnitudesInto(dest []float64) error {
	e.workspace.mu.RLock()
	defer e.workspace.mu.RUnlock()

	if len(dest) != len(e.workspace.magnitude) {
		return fmt.Errorf("destination slice length %d does not match required length %d",
			len(dest), len(e.workspace.magnitude))
	}
	if !e.workspace.valid {
		return ErrNoData
	}
	copy(dest, e.workspace.magnitude)
	return nil
}

// FrequencyForBin returns the centre frequency (Hz) of a bin, or 0 for an
// index outside the spectrum.
func (e *Engine) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= len(e.workspace.fftOutput) {
		return 0.0
	}
	return e.binFrequency(binIndex)
}

func (e *Engine) binFrequency(binIndex int) float64 {
	return float64(binIndex) * e.sampleRate / float64(e.transformSize)
}

// BinWidth is the spacing between bins in Hz.
func (e *Engine) BinWidth() float64 { return e.sampleRate / float64(e.transformSize) }

// BinCount is the length of every spectrum (transformSize/2 + 1).
func (e *Engine) BinCount() int { return len(e.workspace.magnitude) }

// BlockSize is the number of bytes one Transform consumes.
func (e *Engine) BlockSize() int { return e.transformSize * BytesPerSample }

// TransformSize returns the number of samples per transform.
func (e *Engine) TransformSize() int { return e.transformSize }

// SampleRate returns the configured sample rate in Hz.
func (e *Engine) SampleRate() float64 { return e.sampleRate }
