// Package log is the process-wide leveled logger. The level is held
// atomically so the capture goroutine can check it without locking.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var (
	currentLevel atomic.Uint32
	output       atomic.Pointer[stdlog.Logger]
)

func init() {
	SetLevel(LevelInfo)
	SetOutput(os.Stderr)
}

// SetLevel sets the global logging level.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel returns the global logging level.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output to w. Messages carry date and
// microsecond time stamps.
func SetOutput(w io.Writer) {
	output.Store(stdlog.New(w, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds))
}

// Enabled reports whether a message at level would be written.
func Enabled(level LogLevel) bool {
	return level >= GetLevel()
}

func write(level LogLevel, prefix, msg string) {
	if !Enabled(level) && level != LevelFatal {
		return
	}
	l := output.Load()
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	if level == LevelFatal {
		l.Fatalf("[%s] %s", level, msg)
	}
	l.Printf("[%-5s] %s", level, msg)
}

// Debugf logs a formatted debug message.
func Debugf(format string, v ...any) {
	if Enabled(LevelDebug) {
		write(LevelDebug, "", fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted info message.
func Infof(format string, v ...any) {
	if Enabled(LevelInfo) {
		write(LevelInfo, "", fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning.
func Warnf(format string, v ...any) {
	if Enabled(LevelWarn) {
		write(LevelWarn, "", fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error.
func Errorf(format string, v ...any) {
	if Enabled(LevelError) {
		write(LevelError, "", fmt.Sprintf(format, v...))
	}
}

// Fatalf logs regardless of level and exits the process.
func Fatalf(format string, v ...any) {
	write(LevelFatal, "", fmt.Sprintf(format, v...))
}

// Logger prefixes every message with a component name, e.g.
// "capture: read failed".
type Logger struct {
	name string
}

// Named returns a Logger for the given component.
func Named(name string) Logger {
	return Logger{name: name}
}

func (l Logger) Debugf(format string, v ...any) {
	if Enabled(LevelDebug) {
		write(LevelDebug, l.name, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Infof(format string, v ...any) {
	if Enabled(LevelInfo) {
		write(LevelInfo, l.name, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Warnf(format string, v ...any) {
	if Enabled(LevelWarn) {
		write(LevelWarn, l.name, fmt.Sprintf(format, v...))
	}
}

func (l Logger) Errorf(format string, v ...any) {
	if Enabled(LevelError) {
		write(LevelError, l.name, fmt.Sprintf(format, v...))
	}
}
