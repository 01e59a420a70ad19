// Package audio handles microphone discovery, selection, and PCM capture streams.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// ErrNoDevices is returned when the server reports no input sources.
var ErrNoDevices = errors.New("no audio input devices found")

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Label formats a device for logs and notices.
func (d Device) Label() string {
	description := strings.TrimSpace(d.Description)
	id := strings.TrimSpace(d.ID)
	switch {
	case description == "":
		return id
	case id == "":
		return description
	default:
		return fmt.Sprintf("%s (%s)", description, id)
	}
}

// Selection is the resolved capture source plus optional fallback context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("omirec"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default and availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil || isMonitor(info) {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves input/fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList applies the selection policy to a fetched device list.
// A configured input that is muted or unplugged falls back to the fallback
// preference, or the server default when none is configured.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, ErrNoDevices
	}

	input = normalizePreference(input)
	fallback = normalizePreference(fallback)

	var defaultDevice, byInput, byFallback *Device
	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && input != "" && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && fallback != "" && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	primary := defaultDevice
	if input != "" {
		if byInput == nil {
			return Selection{}, fmt.Errorf("audio.input %q did not match any device", input)
		}
		primary = byInput
	}
	if primary == nil {
		return Selection{}, errors.New("default audio source is unavailable")
	}
	if usable(*primary) {
		return Selection{Device: *primary}, nil
	}

	reason := unusableReason(*primary)
	candidate := defaultDevice
	if fallback != "" {
		if byFallback == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
		}
		candidate = byFallback
	}
	if candidate == nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback", primary.ID, reason)
	}
	if !usable(*candidate) {
		return Selection{}, fmt.Errorf("audio fallback device %q is %s", candidate.ID, unusableReason(*candidate))
	}

	return Selection{
		Device:   *candidate,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, candidate.ID),
		Fallback: primary.ID != candidate.ID,
	}, nil
}

func normalizePreference(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "default" {
		return ""
	}
	return value
}

func usable(d Device) bool {
	return d.Available && !d.Muted
}

func unusableReason(d Device) string {
	if d.Muted {
		return "muted"
	}
	return "unavailable"
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

// isMonitor filters sink monitor sources, which never carry microphone input.
func isMonitor(source *pulseproto.GetSourceInfoReply) bool {
	return strings.HasSuffix(source.SourceName, ".monitor")
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps the active port's availability to a boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available != 1
	}
	return true
}
