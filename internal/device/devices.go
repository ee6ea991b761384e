// SPDX-License-Identifier: MIT
package device

import (
	"fmt"
	"io"

	"spectrum/internal/config"

	"github.com/gordonklaus/portaudio"
)

// PortAudio entry points, swapped out by tests.
var (
	paLibInitialize             = portaudio.Initialize
	paLibTerminate              = portaudio.Terminate
	paLibDevicesFunc            = portaudio.Devices
	paLibDefaultInputDeviceFunc = portaudio.DefaultInputDevice
	paDevicesFunc               = paDevices
)

// Device describes one host audio device.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Initialize sets up the PortAudio subsystem.
// Every successful call must be paired with a Terminate call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem.
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// HostDevices returns every device PortAudio reports, indexed by ID.
// PortAudio must be initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
	}
	return devices, nil
}

// Devices initializes PortAudio, lists the host devices and terminates again.
func Devices() ([]Device, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	defer Terminate()
	return HostDevices()
}

// InputDevice resolves deviceID to a device that can capture. config.MinDeviceID
// selects the system default input. PortAudio must be initialized.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	if deviceID == config.MinDeviceID {
		device, err := paLibDefaultInputDeviceFunc()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return device, nil
	}

	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	if devices[deviceID].MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) does not support input", deviceID, devices[deviceID].Name)
	}
	return devices[deviceID], nil
}

// ListDevices writes a table of the host's devices to w.
// PortAudio must be initialized.
func ListDevices(w io.Writer) error {
	devices, err := paDevicesFunc()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")

	for i, device := range devices {
		inputChannels := device.MaxInputChannels
		outputChannels := device.MaxOutputChannels

		deviceType := ""
		switch {
		case inputChannels > 0 && outputChannels > 0:
			deviceType = "Input/Output"
		case inputChannels > 0:
			deviceType = "Input"
		case outputChannels > 0:
			deviceType = "Output"
		}

		fmt.Fprintf(w, "[%d] %s (%s)\n", i, device.Name, deviceType)
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", inputChannels, outputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n\n",
			device.DefaultLowInputLatency.Seconds()*1000,
			device.DefaultHighInputLatency.Seconds()*1000)
	}

	return nil
}

// paDevices never returns a nil slice without an error.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}
