//go:build windows

package camera

import (
	"regexp"
	"strings"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

func platformConfig() CaptureConfig {
	return CaptureConfig{
		InputFormat:   "dshow",
		DefaultDevice: "", // Auto-detect, no safe default on Windows
		QuitOnStdin:   true,
		InputArgs: func(s Settings) []string {
			return []string{"-video_size", videoSize(s)}
		},
	}
}

func listDevices(ffmpegPath string) []types.Device {
	return parseDeviceList(DeviceListConfig{
		Command: []string{ffmpegPath, "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		// Match lines like: [dshow @ addr] "Device Name" (video)
		DevicePattern: regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(video\)`),
		ParseDevice: func(matches []string) *types.Device {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			return &types.Device{ID: "video=" + name, Name: name}
		},
	})
}
