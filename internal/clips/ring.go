package clips

import (
	"sync"

	"github.com/oszuidwest/drowsiguard/internal/camera"
)

// Ring holds the most recent sampled frames.
type Ring struct {
	mu     sync.Mutex
	frames []camera.Frame
	next   int
	full   bool
}

// NewRing creates a ring holding up to capacity frames.
func NewRing(capacity int) *Ring {
	return &Ring{frames: make([]camera.Frame, max(capacity, 1))}
}

// Add stores a frame, overwriting the oldest when full.
func (r *Ring) Add(f camera.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[r.next] = f
	r.next = (r.next + 1) % len(r.frames)
	if r.next == 0 {
		r.full = true
	}
}

// Frames returns the buffered frames, oldest first.
func (r *Ring) Frames() []camera.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]camera.Frame, r.next)
		copy(out, r.frames[:r.next])
		return out
	}
	out := make([]camera.Frame, 0, len(r.frames))
	out = append(out, r.frames[r.next:]...)
	return append(out, r.frames[:r.next]...)
}

// Reset drops all frames and changes the capacity.
func (r *Ring) Reset(capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make([]camera.Frame, max(capacity, 1))
	r.next = 0
	r.full = false
}

// Len returns the number of buffered frames.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.frames)
	}
	return r.next
}
