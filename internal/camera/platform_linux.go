//go:build linux

package camera

import (
	"regexp"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

func platformConfig() CaptureConfig {
	return CaptureConfig{
		InputFormat:   "v4l2",
		DefaultDevice: "/dev/video0",
		InputArgs: func(s Settings) []string {
			return []string{"-video_size", videoSize(s)}
		},
	}
}

func listDevices(_ string) []types.Device {
	return parseDeviceList(DeviceListConfig{
		Command:       []string{"v4l2-ctl", "--list-devices"},
		DevicePattern: regexp.MustCompile(`^\s+(/dev/video\d+)\s*$`),
		ParseDevice: func(matches []string) *types.Device {
			if len(matches) < 2 {
				return nil
			}
			return &types.Device{ID: matches[1], Name: matches[1]}
		},
		FallbackDevices: []types.Device{
			{ID: "/dev/video0", Name: "Default camera (/dev/video0)"},
		},
	})
}
