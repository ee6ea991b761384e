// SPDX-License-Identifier: MIT
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE format tag for integer PCM.
const wavFormatPCM = 1

// WAVConfig describes a file-backed source.
type WAVConfig struct {
	Path       string
	SampleRate float64 // Expected rate; 0 accepts whatever the file uses.
	Loop       bool    // Rewind at end of file instead of reporting io.EOF.
}

// WAV plays an integer PCM WAV file as a mono 16-bit stream. Only the first
// channel is used; 8, 24 and 32-bit files are rescaled to 16 bits.
type WAV struct {
	cfg     WAVConfig
	mu      sync.Mutex
	file    *os.File
	decoder *wav.Decoder
	intBuf  *audio.IntBuffer
	chans   int
	depth   int
	closed  bool
}

// NewWAV returns a WAV source; the file is opened by Start.
func NewWAV(cfg WAVConfig) *WAV {
	return &WAV{cfg: cfg}
}

// Start opens and validates the file.
func (w *WAV) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.file != nil {
		return nil
	}

	f, err := os.Open(w.cfg.Path)
	if err != nil {
		return fmt.Errorf("wav source: %w", err)
	}

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return fmt.Errorf("wav source: %s is not a valid WAV file", w.cfg.Path)
	}
	d.ReadInfo()
	if err := d.Err(); err != nil {
		f.Close()
		return fmt.Errorf("wav source: reading header: %w", err)
	}
	if d.WavAudioFormat != wavFormatPCM {
		f.Close()
		return fmt.Errorf("wav source: unsupported audio format %d, only integer PCM is supported", d.WavAudioFormat)
	}
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		f.Close()
		return fmt.Errorf("wav source: unsupported bit depth %d", d.BitDepth)
	}
	if w.cfg.SampleRate > 0 && float64(d.SampleRate) != w.cfg.SampleRate {
		f.Close()
		return fmt.Errorf("wav source: file sample rate %d Hz does not match configured %.0f Hz",
			d.SampleRate, w.cfg.SampleRate)
	}

	w.file = f
	w.decoder = d
	w.chans = int(d.NumChans)
	w.depth = int(d.BitDepth)
	return nil
}

// Format returns the file's sample rate and channel count once started.
func (w *WAV) Format() (sampleRate int, channels int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.decoder == nil {
		return 0, 0
	}
	return int(w.decoder.SampleRate), w.chans
}

// Read fills buf with whole samples from the first channel. At end of file
// it rewinds when looping; otherwise the remaining samples are returned and
// the following call reports io.EOF.
func (w *WAV) Read(buf []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if w.decoder == nil {
		return 0, ErrNotStarted
	}

	frames := len(buf) / 2
	written := 0
	rewound := false
	for written < frames {
		need := (frames - written) * w.chans
		if w.intBuf == nil || cap(w.intBuf.Data) < need {
			w.intBuf = &audio.IntBuffer{
				Format: &audio.Format{NumChannels: w.chans, SampleRate: int(w.decoder.SampleRate)},
				Data:   make([]int, need),
			}
		}
		w.intBuf.Data = w.intBuf.Data[:need]

		n, err := w.decoder.PCMBuffer(w.intBuf)
		if err != nil {
			return written * 2, fmt.Errorf("wav source: decoding: %w", err)
		}
		for i := 0; i+w.chans <= n; i += w.chans {
			binary.LittleEndian.PutUint16(buf[written*2:], uint16(w.to16(w.intBuf.Data[i])))
			written++
		}

		if n > 0 {
			rewound = false
		}
		if n < need {
			// End of the PCM chunk. A rewind that yields nothing means the
			// file holds no samples at all.
			if !w.cfg.Loop || (n == 0 && rewound) {
				break
			}
			if err := w.decoder.Rewind(); err != nil {
				return written * 2, fmt.Errorf("wav source: rewinding: %w", err)
			}
			rewound = true
		}
	}

	if written == 0 {
		return 0, io.EOF
	}
	return written * 2, nil
}

func (w *WAV) to16(v int) int16 {
	switch w.depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// Close releases the file. Safe to call more than once.
func (w *WAV) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.decoder = nil
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		if err != nil {
			return fmt.Errorf("wav source: %w", err)
		}
	}
	return nil
}

var _ Source = (*WAV)(nil)
