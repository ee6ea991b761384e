// SPDX-License-Identifier: MIT
package analysis

// SpectrumProvider exposes the latest spectrum of an engine to readers that
// poll it on their own schedule, such as network publishers.
type SpectrumProvider interface {
	// MagnitudesInto copies the latest spectrum into dest, which must be
	// BinCount() long. Returns ErrNoData before the first spectrum.
	MagnitudesInto(dest []float64) error
	BinCount() int
}

// Compile-time check for interface implementation.
var _ SpectrumProvider = (*Engine)(nil)
