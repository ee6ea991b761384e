// SPDX-License-Identifier: MIT
/*
Package source defines where capture loops get their samples from.

Every Source produces little-endian signed 16-bit mono PCM. A loop calls
Start once before its first Read and Close once after its last. Read blocks
until it can fill buf (or fails) and returns the number of bytes written.

Implementations in this package need no audio hardware:
  - Synthetic generates test signals.
  - WAV plays back a file.

The live microphone lives in the device package because it needs cgo.
*/
package source

import "errors"

// Source supplies raw PCM blocks to a capture loop.
type Source interface {
	// Start acquires whatever the source needs before the first Read.
	Start() error
	// Read fills at most len(buf) bytes and returns how many were written.
	// Zero or an error means no usable data this cycle.
	Read(buf []byte) (int, error)
	// Close releases the source. It must be safe to call more than once and
	// may be called from a different goroutine than Read.
	Close() error
}

var (
	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("source closed")

	// ErrNotStarted is returned by Read before Start.
	ErrNotStarted = errors.New("source not started")
)
