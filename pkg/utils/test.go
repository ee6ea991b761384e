// Package utils holds signal generators and recorders shared by tests.
package utils

import (
	"encoding/binary"
	"math"
	"sync"
)

// Recorder collects values handed to it from any goroutine, typically
// spectra delivered to a listener.
type Recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

// Record appends v.
func (r *Recorder[T]) Record(v T) {
	r.mu.Lock()
	r.items = append(r.items, v)
	r.mu.Unlock()
}

// Len returns how many values have been recorded.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Items returns a copy of everything recorded so far.
func (r *Recorder[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Last returns the most recent value and false if nothing was recorded.
func (r *Recorder[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	return r.items[len(r.items)-1], true
}

// GenerateSineWave returns size int16 samples of a sine at frequency with
// the given amplitude (0..1 of full scale).
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int16(math.Round(math.Sin(2*math.Pi*frequency*t) * amplitude * math.MaxInt16))
	}
	return buffer
}

// GenerateComplexWave returns a 440 Hz fundamental plus two harmonics at
// 90% of full scale.
func GenerateComplexWave(size int, sampleRate float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = int16(signal * math.MaxInt16 * 0.9)
	}
	return buffer
}

// PCMBytes encodes samples as little-endian 16-bit PCM.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// SineBlock is PCMBytes(GenerateSineWave(...)).
func SineBlock(size int, sampleRate, frequency, amplitude float64) []byte {
	return PCMBytes(GenerateSineWave(size, sampleRate, frequency, amplitude))
}

// FindPeakBin returns the index of the largest magnitude within
// [startBin, endBin], clamped to the slice. Ties keep the lower index.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
