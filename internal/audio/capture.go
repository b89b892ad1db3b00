package audio

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Capture wraps a PortAudio input stream and exposes the latest mono window
// of game audio.
type Capture struct {
	stream     *portaudio.Stream
	sampleRate float64
	channels   int
	device     *portaudio.DeviceInfo

	ring *ring
}

// Config controls how a Capture instance is created.
type Config struct {
	DeviceName string
	BufferSize int
	Channels   int
	Log        *log.Logger
}

const defaultBufferSize = 4096

// NewCapture opens a PortAudio stream using the provided configuration.
// Without a device name it prefers loopback-style devices so the game's own
// output is what gets analysed.
func NewCapture(cfg Config) (*Capture, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	device, err := findDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < cfg.Channels {
		cfg.Channels = device.MaxInputChannels
	}

	inParams := portaudio.StreamDeviceParameters{
		Device:   device,
		Channels: cfg.Channels,
		Latency:  device.DefaultLowInputLatency,
	}

	sampleRate := device.DefaultSampleRate

	capture := &Capture{
		sampleRate: sampleRate,
		ring:       newRing(cfg.BufferSize),
		channels:   cfg.Channels,
		device:     device,
	}

	framesPerBuffer := cfg.BufferSize / cfg.Channels / 4
	if framesPerBuffer < 64 {
		framesPerBuffer = portaudio.FramesPerBufferUnspecified
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input:           inParams,
		Output:          portaudio.StreamDeviceParameters{},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, capture.process)
	if err != nil {
		return nil, fmt.Errorf("open stream on %q: %w", device.Name, err)
	}

	capture.stream = stream

	if err := capture.stream.Start(); err != nil {
		_ = capture.stream.Close()
		return nil, fmt.Errorf("start stream on %q: %w", device.Name, err)
	}

	logger.Printf("[audio] capturing %q at %.0f Hz, %d ch, loopback=%v",
		device.Name, sampleRate, cfg.Channels, IsLoopbackName(device.Name))
	return capture, nil
}

// Close stops and closes the underlying PortAudio stream.
func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	if err := c.stream.Stop(); err != nil && !errorsIsInvalidStreamState(err) {
		return err
	}
	return c.stream.Close()
}

// SampleRate returns the stream sample rate.
func (c *Capture) SampleRate() float64 {
	return c.sampleRate
}

// Device returns the PortAudio device associated with the capture stream.
func (c *Capture) Device() *portaudio.DeviceInfo {
	return c.device
}

// SamplesInto copies the most recent window, oldest first, into dst and
// returns it. dst is reused when large enough.
func (c *Capture) SamplesInto(dst []float32) []float32 {
	return c.ring.snapshotInto(dst)
}

func (c *Capture) process(in []float32) {
	c.ring.write(in, c.channels)
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		return findDeviceByName(name)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	defaultInputIndex, defaultHostIndex := defaultIndexes()

	if candidate := pickBestDevice(devices, defaultInputIndex, defaultHostIndex); candidate != nil {
		return candidate, nil
	}

	return nil, fmt.Errorf("no suitable audio input device found")
}

func findDeviceByName(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	name = strings.ToLower(name)
	for _, device := range devices {
		if device.MaxInputChannels == 0 {
			continue
		}
		if strings.Contains(strings.ToLower(device.Name), name) {
			return device, nil
		}
	}

	return nil, fmt.Errorf("audio device %q not found", name)
}

var loopbackKeywords = []string{"monitor", "loopback", "stereo mix", "wave out mix", "what u hear", "cable output", "blackhole"}

// IsLoopbackName reports whether a device name looks like a capture of the
// system output rather than a microphone.
func IsLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range loopbackKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// deviceScore ranks a capture candidate. Loopback sources win over the
// default microphone.
func deviceScore(d *portaudio.DeviceInfo, defaultInputIndex, defaultHostIndex int) int {
	score := min(d.MaxInputChannels, 8)
	if IsLoopbackName(d.Name) {
		score += 100
	}
	if d.Index == defaultInputIndex {
		score += 50
	}
	if d.Index == defaultHostIndex {
		score += 40
	}
	if strings.Contains(strings.ToLower(d.Name), "default") {
		score += 10
	}
	return score
}

func pickBestDevice(devices []*portaudio.DeviceInfo, defaultInputIndex, defaultHostIndex int) *portaudio.DeviceInfo {
	type scored struct {
		dev   *portaudio.DeviceInfo
		score int
	}

	var results []scored
	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}

		score := deviceScore(d, defaultInputIndex, defaultHostIndex)
		results = append(results, scored{dev: d, score: score})
	}

	if len(results) == 0 {
		return nil
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return strings.ToLower(results[i].dev.Name) < strings.ToLower(results[j].dev.Name)
		}
		return results[i].score > results[j].score
	})

	return results[0].dev
}

// errorsIsInvalidStreamState checks if the provided error stems from stopping an already stopped stream.
func errorsIsInvalidStreamState(err error) bool {
	if err == nil {
		return false
	}
	const invalidStateMsg = "PaErrorCode -9986"
	return strings.Contains(err.Error(), invalidStateMsg)
}

