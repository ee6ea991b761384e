// SPDX-License-Identifier: MIT
package analysis

import "errors"

var (
	// ErrInvalidConfig is returned when the sample rate or transform size
	// cannot be used to build an engine.
	ErrInvalidConfig = errors.New("invalid spectrum configuration")

	// ErrMalformedInput is returned by Transform when a block does not hold
	// exactly one transform's worth of samples.
	ErrMalformedInput = errors.New("malformed sample block")

	// ErrNoData is returned by the peak accessors when no spectrum exists yet.
	ErrNoData = errors.New("no spectrum available")
)
