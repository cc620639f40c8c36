package util

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IsConfigured reports whether all provided values are non-empty.
func IsConfigured(values ...string) bool {
	for _, v := range values {
		if v == "" {
			return false
		}
	}
	return true
}

// ValidatePath rejects empty paths and paths with traversal components.
func ValidatePath(field, path string) error {
	if path == "" {
		return fmt.Errorf("%s: is required", field)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s: path cannot contain '..'", field)
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s: invalid path", field)
	}
	return nil
}

// CheckPathWritable creates dir if needed and verifies a file can be written and removed in it.
func CheckPathWritable(dir string) error {
	fail := func(step string, err error) error {
		slog.Error("path writability check failed", "path", dir, "error", err, "step", step)
		return fmt.Errorf("path is not writable")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("mkdir", err)
	}

	probe := filepath.Join(dir, fmt.Sprintf(".drowsiguard-write-test-%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, make([]byte, 1024), 0o600); err != nil {
		_ = os.Remove(probe)
		return fail("write", err)
	}
	if err := os.Remove(probe); err != nil {
		return fail("remove", err)
	}
	return nil
}
