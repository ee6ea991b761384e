// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"spectrum/internal/analysis"
	applog "spectrum/internal/log"
	"spectrum/internal/source"
	"spectrum/pkg/bitint"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Boundaries and defaults for the capture engine.
const (
	MinDeviceID      = -1     // -1 represents system default device
	MinSampleRate    = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate    = 192000 // Maximum supported sample rate (Hz)
	MaxTransformSize = 16384  // Largest transform (power of 2)

	DefaultDeviceID      = MinDeviceID
	DefaultSampleRate    = 44100
	DefaultTransformSize = 1024
	DefaultSource        = SourceMicrophone
	DefaultLogLevel      = "info"
	DefaultToneFrequency = 440.0
)

// Source names accepted by audio.source.
const (
	SourceMicrophone = "microphone"
	SourceSynthetic  = "synthetic"
	SourceWAV        = "wav"
)

// EnvPrefix is prepended to every environment override, e.g.
// SPECTRUM_AUDIO_SAMPLE_RATE for audio.sample_rate.
const EnvPrefix = "SPECTRUM"

// Config is the complete runtime configuration. It is assembled by Load from
// defaults, an optional YAML file, SPECTRUM_* environment variables and
// command line flags, in increasing order of precedence.
type Config struct {
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level"`
	TUI       bool            `mapstructure:"tui" yaml:"tui"` // Terminal spectrum viewer instead of log output.
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Synthetic SyntheticConfig `mapstructure:"synthetic" yaml:"synthetic"`
	WAV       WAVConfig       `mapstructure:"wav" yaml:"wav"`
	Loop      LoopConfig      `mapstructure:"loop" yaml:"loop"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
}

// AudioConfig selects the sample source and the analysis parameters.
type AudioConfig struct {
	Source        string  `mapstructure:"source" yaml:"source"`                 // microphone, synthetic or wav.
	InputDevice   int     `mapstructure:"input_device" yaml:"input_device"`     // PortAudio device index (-1 for default).
	SampleRate    float64 `mapstructure:"sample_rate" yaml:"sample_rate"`       // Hz.
	TransformSize int     `mapstructure:"transform_size" yaml:"transform_size"` // Samples per spectrum, power of 2.
	LowLatency    bool    `mapstructure:"low_latency" yaml:"low_latency"`       // Request the device's low input latency.
}

// SyntheticConfig shapes the test signal used by the synthetic source.
type SyntheticConfig struct {
	Shape           string  `mapstructure:"shape" yaml:"shape"`
	Frequency       float64 `mapstructure:"frequency" yaml:"frequency"`
	SecondFrequency float64 `mapstructure:"second_frequency" yaml:"second_frequency"`
	Amplitude       float64 `mapstructure:"amplitude" yaml:"amplitude"`
	Noise           float64 `mapstructure:"noise" yaml:"noise"`
	Seed            uint64  `mapstructure:"seed" yaml:"seed"`
	Realtime        bool    `mapstructure:"realtime" yaml:"realtime"` // Pace reads to the sample rate.
}

// WAVConfig points the wav source at a file.
type WAVConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	Loop bool   `mapstructure:"loop" yaml:"loop"`
}

// LoopConfig tunes the back-off after failed capture cycles.
type LoopConfig struct {
	BackoffInitial time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial"` // 0 retries immediately.
	BackoffMax     time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
}

// TransportConfig enables the network outputs. An empty address disables
// the corresponding transport.
type TransportConfig struct {
	WebSocketAddr     string        `mapstructure:"websocket_addr" yaml:"websocket_addr"`         // e.g. ":8080".
	WebSocketInterval time.Duration `mapstructure:"websocket_interval" yaml:"websocket_interval"` // Minimum gap between frames per client.
	UDPTarget         string        `mapstructure:"udp_target" yaml:"udp_target"`                 // e.g. "127.0.0.1:9090".
	UDPInterval       time.Duration `mapstructure:"udp_interval" yaml:"udp_interval"`
}

// FlagKeys maps command line flag names onto configuration keys.
var FlagKeys = map[string]string{
	"log-level":      "log_level",
	"tui":            "tui",
	"source":         "audio.source",
	"device":         "audio.input_device",
	"sample-rate":    "audio.sample_rate",
	"transform-size": "audio.transform_size",
	"low-latency":    "audio.low_latency",
	"tone":           "synthetic.frequency",
	"wav":            "wav.path",
	"ws-addr":        "transport.websocket_addr",
	"udp-target":     "transport.udp_target",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("tui", false)

	v.SetDefault("audio.source", DefaultSource)
	v.SetDefault("audio.input_device", DefaultDeviceID)
	v.SetDefault("audio.sample_rate", DefaultSampleRate)
	v.SetDefault("audio.transform_size", DefaultTransformSize)
	v.SetDefault("audio.low_latency", false)

	v.SetDefault("synthetic.shape", "sine")
	v.SetDefault("synthetic.frequency", DefaultToneFrequency)
	v.SetDefault("synthetic.second_frequency", 0.0)
	v.SetDefault("synthetic.amplitude", 0.8)
	v.SetDefault("synthetic.noise", 0.0)
	v.SetDefault("synthetic.seed", 1)
	v.SetDefault("synthetic.realtime", true)

	v.SetDefault("wav.path", "")
	v.SetDefault("wav.loop", true)

	v.SetDefault("loop.backoff_initial", 5*time.Millisecond)
	v.SetDefault("loop.backoff_max", 250*time.Millisecond)

	v.SetDefault("transport.websocket_addr", "")
	v.SetDefault("transport.websocket_interval", 16*time.Millisecond) // ~60Hz
	v.SetDefault("transport.udp_target", "")
	v.SetDefault("transport.udp_interval", 33*time.Millisecond) // ~30Hz
}

// Default returns the built-in configuration, ignoring files, environment
// and flags.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Load builds the configuration. If path is empty, ./config.yaml is used
// when present and silently skipped otherwise; an explicit path must exist.
// Only flags in FlagKeys that the user actually set override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem at once, wrapped in
// analysis.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	_, ok := applog.ParseLevel(c.LogLevel)
	check(ok, "log_level: unknown level %q", c.LogLevel)

	a := c.Audio
	switch a.Source {
	case SourceMicrophone, SourceSynthetic, SourceWAV:
	default:
		check(false, "audio.source: must be %s, %s or %s, got %q", SourceMicrophone, SourceSynthetic, SourceWAV, a.Source)
	}
	check(a.InputDevice >= MinDeviceID, "audio.input_device: must be >= %d, got %d", MinDeviceID, a.InputDevice)
	check(a.SampleRate >= MinSampleRate && a.SampleRate <= MaxSampleRate,
		"audio.sample_rate: must be within [%d, %d], got %.0f", MinSampleRate, MaxSampleRate, a.SampleRate)
	check(a.TransformSize >= analysis.MinTransformSize && a.TransformSize <= MaxTransformSize && bitint.IsPowerOfTwo(a.TransformSize),
		"audio.transform_size: must be a power of 2 within [%d, %d], got %d", analysis.MinTransformSize, MaxTransformSize, a.TransformSize)

	if a.Source == SourceSynthetic {
		s := c.Synthetic
		_, err := source.ParseShape(s.Shape)
		check(err == nil, "synthetic.shape: %v", err)
		nyquist := a.SampleRate / 2
		check(s.Frequency >= 0 && s.Frequency <= nyquist, "synthetic.frequency: must be within [0, %.0f], got %.1f", nyquist, s.Frequency)
		check(s.SecondFrequency >= 0 && s.SecondFrequency <= nyquist, "synthetic.second_frequency: must be within [0, %.0f], got %.1f", nyquist, s.SecondFrequency)
		check(s.Amplitude >= 0 && s.Amplitude <= 1, "synthetic.amplitude: must be within [0, 1], got %.2f", s.Amplitude)
		check(s.Noise >= 0 && s.Noise <= 1, "synthetic.noise: must be within [0, 1], got %.2f", s.Noise)
	}
	if a.Source == SourceWAV {
		check(c.WAV.Path != "", "wav.path: required when audio.source is %s", SourceWAV)
	}

	check(c.Loop.BackoffInitial >= 0, "loop.backoff_initial: must not be negative")
	check(c.Loop.BackoffMax >= c.Loop.BackoffInitial, "loop.backoff_max: must be >= loop.backoff_initial")

	if c.Transport.WebSocketAddr != "" {
		check(strings.Contains(c.Transport.WebSocketAddr, ":"), "transport.websocket_addr: %q is missing a port", c.Transport.WebSocketAddr)
		check(c.Transport.WebSocketInterval >= 0, "transport.websocket_interval: must not be negative")
	}
	if c.Transport.UDPTarget != "" {
		check(strings.Contains(c.Transport.UDPTarget, ":"), "transport.udp_target: %q is missing a port", c.Transport.UDPTarget)
		check(c.Transport.UDPInterval > 0, "transport.udp_interval: must be positive when UDP is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", analysis.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
