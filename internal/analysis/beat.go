package analysis

import (
	"encoding/binary"
	"math"
)

// Defaults for NewBeatDetector, tuned for a 1024-point transform at 44.1kHz.
const (
	DefaultBeatThreshold = 0.05 // RMS level, 0..1.
	DefaultBeatRatio     = 1.5
	DefaultBeatCooldown  = 4 // Blocks.
)

// BeatDetector flags onsets from the energy of successive blocks. A block is
// an onset when its energy clears the threshold and rises by at least
// minRatio over the block before it.
type BeatDetector struct {
	threshold  float64 // Energy threshold for detection
	minRatio   float64 // Minimum ratio increase to trigger detection
	cooldown   int     // Blocks to ignore after a detection
	lastEnergy float64 // Energy of the previous block
	quiet      int     // Blocks left in the current cooldown
}

func NewBeatDetector(threshold, minRatio float64, cooldown int) *BeatDetector {
	return &BeatDetector{
		threshold: threshold,
		minRatio:  minRatio,
		cooldown:  max(cooldown, 0),
	}
}

// Process feeds the energy of the next block and reports whether it is an
// onset.
func (d *BeatDetector) Process(energy float64) bool {
	last := d.lastEnergy
	d.lastEnergy = energy

	if d.quiet > 0 {
		d.quiet--
		return false
	}
	if energy <= d.threshold || (last > 0 && energy/last < d.minRatio) {
		return false
	}
	d.quiet = d.cooldown
	return true
}

// Reset forgets the previous block and any running cooldown.
func (d *BeatDetector) Reset() {
	d.lastEnergy = 0
	d.quiet = 0
}

// RMSLevel returns the root mean square of a block of little-endian int16
// samples, normalized to [0, 1]. A trailing odd byte is ignored.
func RMSLevel(block []byte) float64 {
	n := len(block) / BytesPerSample
	if n == 0 {
		return 0
	}

	var sumSquare float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(block[i*BytesPerSample:]))) * pcmScale
		sumSquare += s * s
	}
	return math.Sqrt(sumSquare / float64(n))
}
