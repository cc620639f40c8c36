//go:build darwin

package camera

import (
	"regexp"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

func platformConfig() CaptureConfig {
	return CaptureConfig{
		InputFormat:   "avfoundation",
		DefaultDevice: "0",
		InputArgs: func(s Settings) []string {
			// avfoundation only accepts rates the device advertises.
			return []string{"-framerate", "30", "-video_size", videoSize(s)}
		},
	}
}

func listDevices(ffmpegPath string) []types.Device {
	return parseDeviceList(DeviceListConfig{
		Command:       []string{ffmpegPath, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		StartMarker:   "AVFoundation video devices:",
		StopMarker:    "AVFoundation audio devices:",
		DevicePattern: regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
		ParseDevice: func(matches []string) *types.Device {
			if len(matches) < 3 {
				return nil
			}
			return &types.Device{ID: matches[1], Name: matches[2]}
		},
	})
}
