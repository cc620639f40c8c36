package camera

import (
	"sync"
	"time"
)

// Frame is one encoded JPEG image with its arrival time.
type Frame struct {
	Data []byte
	At   time.Time
}

// FrameStore holds the most recent frame. The latest write wins.
type FrameStore struct {
	mu     sync.RWMutex
	latest Frame
	count  uint64
}

// Put replaces the stored frame.
func (s *FrameStore) Put(data []byte, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = Frame{Data: data, At: at}
	s.count++
}

// Latest returns the stored frame, or false if none arrived yet.
func (s *FrameStore) Latest() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest.Data != nil
}

// Count returns how many frames were stored since creation.
func (s *FrameStore) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Clear drops the stored frame.
func (s *FrameStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = Frame{}
}
