package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// DeviceConfig describes the input stream to open.
type DeviceConfig struct {
	SampleRate      int
	FramesPerBuffer int
	DeviceIndex     int // negative selects the host default input device
}

// FrameFunc receives one device buffer of mono samples. The slice is owned
// by the driver and is only valid for the duration of the call.
type FrameFunc func(frame []float32)

// ErrFunc receives a fatal mid-session device error.
type ErrFunc func(err error)

// Stream is an open audio input stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Opener opens an input stream that delivers frames to onFrame until the
// stream is stopped. Session depends on this seam rather than on the audio
// host directly.
type Opener func(cfg DeviceConfig, onFrame FrameFunc, onErr ErrFunc) (Stream, error)

// OpenInputStream opens a mono portaudio input stream on the configured
// device. The caller must have initialized the portaudio host. Open failure
// is fatal for the session and is never retried.
func OpenInputStream(cfg DeviceConfig, onFrame FrameFunc, onErr ErrFunc) (Stream, error) {
	dev, err := resolveInputDevice(cfg.DeviceIndex)
	if err != nil {
		return nil, err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		onFrame(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", dev.Name, err)
	}

	return stream, nil
}

func resolveInputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range, host has %d devices", index, len(devices))
	}

	dev := devices[index]
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", index, dev.Name)
	}
	return dev, nil
}

// InputDevice describes one capture-capable device of the audio host.
type InputDevice struct {
	Index      int
	Name       string
	Channels   int
	SampleRate float64
	Default    bool
}

// ListInputDevices enumerates devices with at least one input channel,
// keeping the host's global device indices so they can be fed back into
// DeviceConfig.DeviceIndex.
func ListInputDevices() ([]InputDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	def, _ := portaudio.DefaultInputDevice()

	out := make([]InputDevice, 0, len(devices))
	for i, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		out = append(out, InputDevice{
			Index:      i,
			Name:       dev.Name,
			Channels:   dev.MaxInputChannels,
			SampleRate: dev.DefaultSampleRate,
			Default:    def != nil && dev == def,
		})
	}
	return out, nil
}
