//go:build !windows

package util

import (
	"io"
	"os"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// StopProcess asks a helper process to exit. stdin is unused on unix.
func StopProcess(p *os.Process, _ io.WriteCloser) error {
	return p.Signal(syscall.SIGINT)
}
