package lipsync

import (
	"sync"
	"time"

	"github.com/normanking/cortexlipsync/internal/viseme"
)

// FrameSlot holds the most recent frame handed over from the audio path.
// Store and Load copy the frame under the lock, so readers never observe a
// partially written value.
type FrameSlot struct {
	mu sync.RWMutex

	frame     viseme.Frame
	present   bool
	updatedAt time.Time
	seq       uint64
}

func NewFrameSlot() *FrameSlot {
	return &FrameSlot{}
}

// Store replaces the current frame.
func (s *FrameSlot) Store(frame viseme.Frame) {
	s.mu.Lock()
	s.frame = frame
	s.present = true
	s.updatedAt = time.Now()
	s.seq++
	s.mu.Unlock()
}

// Load returns a copy of the current frame and whether one exists.
func (s *FrameSlot) Load() (viseme.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.present
}

// Seq counts stores since creation.
func (s *FrameSlot) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// UpdatedAt returns when the frame was last stored.
func (s *FrameSlot) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Clear drops the current frame so the next tick runs idle.
func (s *FrameSlot) Clear() {
	s.mu.Lock()
	s.frame = viseme.Frame{}
	s.present = false
	s.mu.Unlock()
}
