package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"spectrum/cmd"
	"spectrum/internal/device"
	"spectrum/internal/listener"
	"spectrum/internal/log"
	"spectrum/internal/tui"
	"spectrum/pkg/build"
)

// shutdownTimeout bounds the wait for the capture loop to release its source.
const shutdownTimeout = 2 * time.Second

// main is the entry point for the spectrum capture application.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the network outputs
//   - Start the capture loop
//   - Run the terminal display or wait for a signal
//
// 3. Shutdown Phase (Cold Path):
//   - Stop the capture loop and wait for it to release the source
//   - Close the network outputs
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds carry no ldflags; the defaults are fine for them.
	if err := build.Initialize(); err != nil {
		log.Debugf("build info: %v", err)
	}

	// One thread is locked to the capture loop, the other serves the
	// outputs and the UI.
	runtime.GOMAXPROCS(2)

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if opts.Command == "" {
		return
	}
	cfg := opts.Config

	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	// Handle one-off commands that don't need the capture loop
	if opts.Command != cmd.CommandRun {
		if err := executeCommand(opts); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := cmd.NewPipeline(cfg, listener.Default)
	if err != nil {
		log.Fatalf("%v", err)
	}

	// CRITICAL: from here the loop goroutine owns the source and publishes
	// a spectrum per block until Close.
	if err := pipeline.Start(); err != nil {
		log.Fatalf("%v", err)
	}

	if pipeline.Viewer != nil {
		// The display owns the terminal; log lines would tear it.
		log.SetOutput(io.Discard)
		title := fmt.Sprintf("%s %s: %s", build.GetBuildFlags().Name, build.GetBuildFlags().Version, cfg.Audio.Source)
		err := tui.RunSpectrum(pipeline.Viewer, title)
		log.SetOutput(os.Stderr)
		if err != nil {
			log.Errorf("display: %v", err)
		}
	} else {
		// Block until termination signal is received
		<-ctx.Done()
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err := pipeline.Close(shutdownTimeout); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

// executeCommand handles one-off commands that don't require the capture
// loop, such as listing audio devices or printing the configuration.
func executeCommand(opts *cmd.Options) error {
	switch opts.Command {
	case cmd.CommandDevices:
		if opts.Pick {
			sel, err := tui.PickDevice()
			if err != nil || sel == nil {
				return err
			}
			fmt.Printf("Selected %s: --device %d --sample-rate %.0f\n", sel.Name, sel.DeviceID, sel.SampleRate)
			return nil
		}
		if err := device.Initialize(); err != nil {
			return err
		}
		defer device.Terminate()
		return device.ListDevices(os.Stdout)

	case cmd.CommandConfig:
		data, err := opts.Config.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}
	return fmt.Errorf("unknown command: %s", opts.Command)
}
