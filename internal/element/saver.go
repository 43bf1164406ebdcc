package element

import (
	"sync"
	"time"
)

// DefaultSaveDelay is how long mutation bursts coalesce before a persist.
// Slider drags fire many mutations per second; one write per burst is enough.
const DefaultSaveDelay = time.Second

// saver coalesces persistence requests per mockup id. If a save for a key is
// already pending, a new request is a no-op; otherwise one fires after the
// delay. Timers belong to the saver, not to any element, so element churn
// cannot orphan a pending write.
type saver struct {
	delay time.Duration
	save  func(id int)

	mu      sync.Mutex
	pending map[int]*time.Timer
	stopped bool
}

func newSaver(delay time.Duration, save func(id int)) *saver {
	return &saver{
		delay:   delay,
		save:    save,
		pending: make(map[int]*time.Timer),
	}
}

// Request schedules a save for id unless one is already pending.
func (s *saver) Request(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, exists := s.pending[id]; exists {
		return
	}
	s.pending[id] = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		s.save(id)
	})
}

// Cancel drops a pending save for id without running it.
func (s *saver) Cancel(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, exists := s.pending[id]; exists {
		timer.Stop()
		delete(s.pending, id)
	}
}

// Flush runs a pending save for id immediately, if any.
func (s *saver) Flush(id int) {
	s.mu.Lock()
	timer, exists := s.pending[id]
	if exists {
		timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if exists {
		s.save(id)
	}
}

// Stop cancels all pending saves and refuses new ones.
func (s *saver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
}
