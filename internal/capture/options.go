// SPDX-License-Identifier: MIT
package capture

import (
	"time"

	"spectrum/internal/analysis"
	"spectrum/internal/listener"
)

// Back-off applied after consecutive failed cycles.
const (
	DefaultBackoffInitial = 5 * time.Millisecond
	DefaultBackoffMax     = 250 * time.Millisecond
)

type Option func(*Loop)

// WithRegistry publishes to r instead of listener.Default. A nil r keeps
// the default.
func WithRegistry(r *listener.Registry) Option {
	return func(l *Loop) {
		if r != nil {
			l.registry = r
		}
	}
}

// WithBackoff sets the delay after the first failed cycle and the cap it
// doubles up to. An initial delay of zero retries immediately.
func WithBackoff(initial, max time.Duration) Option {
	return func(l *Loop) {
		if max < initial {
			max = initial
		}
		l.backoff = backoff{initial: initial, max: max}
	}
}

// WithBeatDetector replaces the onset detector that sets Frame.Beat. A nil
// d disables detection.
func WithBeatDetector(d *analysis.BeatDetector) Option {
	return func(l *Loop) {
		l.beats = d
	}
}

func defaultBeatDetector() *analysis.BeatDetector {
	return analysis.NewBeatDetector(analysis.DefaultBeatThreshold, analysis.DefaultBeatRatio, analysis.DefaultBeatCooldown)
}

type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func (b *backoff) next() time.Duration {
	if b.initial <= 0 {
		return 0
	}
	if b.current == 0 {
		b.current = b.initial
	} else {
		b.current = min(b.current*2, b.max)
	}
	return b.current
}

func (b *backoff) reset() { b.current = 0 }
