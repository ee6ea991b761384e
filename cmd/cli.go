package cmd

import (
	"spectrum/internal/config"
	"spectrum/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected on the command line.
const (
	CommandRun     = "run"
	CommandDevices = "devices"
	CommandConfig  = "config"
)

// Options is the parsed command line. Command is empty when cobra handled
// the invocation itself (help, version) and there is nothing left to do.
type Options struct {
	Command string
	Config  *config.Config
	Pick    bool // devices: choose interactively instead of listing.
}

// ParseArgs parses args (without the program name) and loads the
// configuration they select.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var configPath string

	load := func(cmd *cobra.Command, command string) error {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		options.Command = command
		options.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandRun)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Devices command
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandDevices)
		},
	}
	devicesCmd.Flags().BoolVarP(&options.Pick, "pick", "p", false,
		"Choose a device and sample rate interactively")
	rootCmd.AddCommand(devicesCmd)

	// Config command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandConfig)
		},
	})

	flags := rootCmd.PersistentFlags()

	flags.StringVar(&configPath, "config", "",
		"Configuration file (default ./config.yaml when present)")
	flags.String("log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn or error")

	// Source Configuration
	flags.String("source", config.DefaultSource,
		"Sample source: microphone, synthetic or wav")
	flags.IntP("device", "d", config.DefaultDeviceID,
		"Input device ID. Use the 'devices' command to see available devices.")
	flags.Float64P("sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntP("transform-size", "n", config.DefaultTransformSize,
		"Samples per spectrum (power of 2)")
	flags.BoolP("low-latency", "l", false,
		"Use low latency mode for real-time processing")
	flags.Float64("tone", config.DefaultToneFrequency,
		"Frequency of the synthetic source in Hz")
	flags.String("wav", "",
		"WAV file played by the wav source")

	// Output Configuration
	flags.Bool("tui", false,
		"Show the spectrum in the terminal")
	flags.String("ws-addr", "",
		"Serve spectra over WebSocket on this address, e.g. :8080")
	flags.String("udp-target", "",
		"Send spectrum packets to this host:port")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}
