package analysis

import "math"

// FrequencyBand is a named frequency range [LowHz, HighHz).
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// BandEnergy is the RMS magnitude of the bins falling inside a band.
type BandEnergy struct {
	Name   string  `json:"name"`
	Energy float64 `json:"energy"`
}

// DefaultBands splits the audible range the way most spectrum displays do.
// The top band is open-ended and is clipped by Nyquist in practice.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandEnergies reduces a spectrum to one RMS value per band. binHz is the
// bin spacing (sampleRate / transformSize). Bands with no bins report 0.
func BandEnergies(spectrum []float64, binHz float64, bands []FrequencyBand) []BandEnergy {
	out := make([]BandEnergy, len(bands))
	counts := make([]int, len(bands))
	for i := range bands {
		out[i].Name = bands[i].Name
	}

	for i, mag := range spectrum {
		freq := float64(i) * binHz
		for b := range bands {
			if freq >= bands[b].LowHz && freq < bands[b].HighHz {
				out[b].Energy += mag * mag
				counts[b]++
				break
			}
		}
	}

	for b := range out {
		if counts[b] > 0 {
			out[b].Energy = math.Sqrt(out[b].Energy / float64(counts[b]))
		}
	}
	return out
}
