package camera

import (
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

// Devices returns available camera devices for the current platform.
func Devices(ffmpegPath string) []types.Device {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return listDevices(ffmpegPath)
}

// DeviceListConfig defines how to list camera devices for a platform.
type DeviceListConfig struct {
	// Command and args to list devices.
	Command []string

	// StartMarker indicates the start of the video devices section.
	StartMarker string

	// StopMarker indicates the end of the video devices section (optional).
	StopMarker string

	// DevicePattern is the regex to extract device info.
	DevicePattern *regexp.Regexp

	// ParseDevice converts regex matches to a Device.
	ParseDevice func(matches []string) *types.Device

	// FallbackDevices are returned if detection fails.
	FallbackDevices []types.Device
}

// parseDeviceList runs the listing command and extracts devices from its output.
//
//nolint:gocritic // hugeParam: 96 bytes is acceptable, no performance impact
func parseDeviceList(cfg DeviceListConfig) []types.Device {
	if len(cfg.Command) == 0 {
		return cfg.FallbackDevices
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil && len(output) == 0 {
		slog.Error("failed to list camera devices", "error", err)
		return cfg.FallbackDevices
	}

	devices := parseDeviceOutput(string(output), &cfg)
	if len(devices) == 0 {
		return cfg.FallbackDevices
	}
	return devices
}

// parseDeviceOutput extracts devices from listing output.
func parseDeviceOutput(output string, cfg *DeviceListConfig) []types.Device {
	if cfg.DevicePattern == nil || cfg.ParseDevice == nil {
		return nil
	}

	var devices []types.Device
	inSection := cfg.StartMarker == ""

	for line := range strings.SplitSeq(output, "\n") {
		if cfg.StartMarker != "" && strings.Contains(line, cfg.StartMarker) {
			inSection = true
			continue
		}
		if cfg.StopMarker != "" && strings.Contains(line, cfg.StopMarker) {
			inSection = false
			continue
		}
		if !inSection || strings.Contains(line, "Alternative name") {
			continue
		}

		matches := cfg.DevicePattern.FindStringSubmatch(line)
		if len(matches) == 0 {
			continue
		}
		if dev := cfg.ParseDevice(matches); dev != nil {
			devices = append(devices, *dev)
		}
	}
	return devices
}
