package util

import "os/exec"

// ResolveBinary returns the path to a helper binary such as ffmpeg or ffplay.
// A configured path must resolve; otherwise name is searched in PATH.
// Returns an empty string if nothing is found.
func ResolveBinary(configured, name string) string {
	if configured != "" {
		if _, err := exec.LookPath(configured); err == nil {
			return configured
		}
		return ""
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}
