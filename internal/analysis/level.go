// SPDX-License-Identifier: MIT
package analysis

import (
	"encoding/binary"
	"math"
)

// PeakLevel returns the absolute peak of a block of little-endian int16
// samples, normalized to [0, 1]. A trailing odd byte is ignored.
//
// The absolute value and running max are computed without branches so the
// cost is flat regardless of signal content.
func PeakLevel(block []byte) float64 {
	var maxAmplitude int32
	for i := 0; i+1 < len(block); i += BytesPerSample {
		sample := int32(int16(binary.LittleEndian.Uint16(block[i:])))
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	return math.Min(1.0, float64(maxAmplitude)*pcmScale)
}
