// Package ffmpeg manages the FFmpeg-family helper processes (ffmpeg, ffplay).
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// Options selects which pipes a process gets.
type Options struct {
	// Stdout exposes the process output as Process.Stdout. When false, output is discarded.
	Stdout bool
}

// Process represents a running helper subprocess.
type Process struct {
	Cmd    *exec.Cmd
	Cancel context.CancelFunc
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr *lockedBuffer

	waitOnce sync.Once
	waitErr  error
}

// lockedBuffer is a bytes.Buffer safe to read while the process writes to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// StartProcess launches binary with args. Cancel asks the process to exit
// gracefully and kills it after types.ShutdownTimeout.
func StartProcess(binary string, args []string, opts Options) (*Process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binary, args...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	cmd.Cancel = func() error {
		return util.StopProcess(cmd.Process, stdinPipe)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	var stdoutPipe io.ReadCloser
	if opts.Stdout {
		stdoutPipe, err = cmd.StdoutPipe()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("create stdout pipe: %w", err)
		}
	}

	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		if closeErr := stdinPipe.Close(); closeErr != nil {
			slog.Warn("failed to close stdin pipe", "error", closeErr)
		}
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	return &Process{
		Cmd:    cmd,
		Cancel: cancel,
		Stdin:  stdinPipe,
		Stdout: stdoutPipe,
		Stderr: stderr,
	}, nil
}

// Wait blocks until the process exits. It may be called more than once.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.Cmd.Wait()
		p.Cancel()
	})
	return p.waitErr
}

// Stop asks the process to exit and waits for it.
func (p *Process) Stop() error {
	p.Cancel()
	return p.Wait()
}

// LastError returns the last meaningful stderr line.
func (p *Process) LastError() string {
	return util.ExtractLastError(p.Stderr.String())
}
