//go:build windows

package util

import (
	"io"
	"os"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// StopProcess asks a helper process to exit. Windows has no SIGINT for child
// processes, so FFmpeg is sent its 'q' command on stdin instead.
func StopProcess(_ *os.Process, stdin io.WriteCloser) error {
	if stdin == nil {
		return nil
	}
	_, _ = stdin.Write([]byte("q"))
	return stdin.Close()
}
