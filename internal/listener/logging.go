package listener

import (
	"sync/atomic"
	"time"

	applog "spectrum/internal/log"
)

// Logger reports the peak frequency through the application log, at most
// once per interval. Used when no display is attached.
type Logger struct {
	interval time.Duration
	lastNano atomic.Int64
	log      applog.Logger
}

// NewLogger returns a Logger; a non-positive interval logs every frame.
func NewLogger(interval time.Duration) *Logger {
	return &Logger{
		interval: interval,
		log:      applog.Named("spectrum"),
	}
}

// OnSpectrum logs the frame if the interval has elapsed since the last line.
func (l *Logger) OnSpectrum(frame Frame) {
	now := frame.Time.UnixNano()
	last := l.lastNano.Load()
	if last != 0 && now-last < l.interval.Nanoseconds() {
		return
	}
	if !l.lastNano.CompareAndSwap(last, now) {
		return
	}
	l.log.Infof("seq=%d peak=%.1f Hz max=%.3f level=%.3f",
		frame.Sequence, frame.PeakHz, frame.MaxMagnitude, frame.Level)
}

// Ensure Logger satisfies the interface at compile time.
var _ Listener = (*Logger)(nil)
