package audio

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	paMu   sync.Mutex
	paRefs int
)

// Initialize starts PortAudio. Calls nest; the library is torn down when the
// last matching Terminate runs.
func Initialize() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio init: %w", err)
		}
	}
	paRefs++
	return nil
}

// Terminate releases one Initialize. Extra calls are ignored.
func Terminate() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		return nil
	}
	paRefs--
	if paRefs > 0 {
		return nil
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio terminate: %w", err)
	}
	return nil
}

// Device is one capture candidate as shown by --list-audio-devices.
type Device struct {
	Name            string
	MaxInput        int
	MaxOutput       int
	DefaultSampleHz float64
	HostAPI         string
	IsDefaultInput  bool
	Loopback        bool
	// Score is the auto-detect ranking; the highest scoring input is
	// Preferred and is what capture opens when no device is named.
	Score     int
	Preferred bool
}

// ListDevices returns the input devices, best capture candidate first.
func ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	defaultInput, defaultHost := defaultIndexes()
	return rankDevices(devices, defaultInput, defaultHost), nil
}

func rankDevices(devices []*portaudio.DeviceInfo, defaultInputIndex, defaultHostIndex int) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}
		host := ""
		if d.HostApi != nil {
			host = d.HostApi.Name
		}
		out = append(out, Device{
			Name:            d.Name,
			MaxInput:        d.MaxInputChannels,
			MaxOutput:       d.MaxOutputChannels,
			DefaultSampleHz: d.DefaultSampleRate,
			HostAPI:         host,
			IsDefaultInput:  d.Index == defaultInputIndex,
			Loopback:        IsLoopbackName(d.Name),
			Score:           deviceScore(d, defaultInputIndex, defaultHostIndex),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > 0 {
		out[0].Preferred = true
	}
	return out
}

func defaultIndexes() (defaultInput, defaultHost int) {
	defaultInput, defaultHost = -1, -1
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultInput = def.Index
	}
	if host, err := portaudio.DefaultHostApi(); err == nil && host != nil && host.DefaultInputDevice != nil {
		defaultHost = host.DefaultInputDevice.Index
	}
	return defaultInput, defaultHost
}
