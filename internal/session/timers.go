package session

import (
	"sync"
	"time"

	"party-rounds/internal/game"
)

// timerKey identifies one pending deadline. turn is only used by story turns.
type timerKey struct {
	code  string
	round int
	phase game.Phase
	turn  int
}

type scheduledTimer struct {
	id    uint64
	timer *time.Timer
}

// Scheduler runs delayed callbacks keyed by game, round and phase. A callback
// whose handle was replaced or cancelled before it fired does nothing.
type Scheduler struct {
	mu     sync.Mutex
	seq    uint64
	timers map[timerKey]*scheduledTimer
	closed bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[timerKey]*scheduledTimer)}
}

func (s *Scheduler) Schedule(key timerKey, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if existing, ok := s.timers[key]; ok {
		existing.timer.Stop()
	}
	s.seq++
	id := s.seq
	entry := &scheduledTimer{id: id}
	entry.timer = time.AfterFunc(delay, func() {
		if !s.claim(key, id) {
			return
		}
		fn()
	})
	s.timers[key] = entry
}

// claim removes the handle for key if it is still the one identified by id.
func (s *Scheduler) claim(key timerKey, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.timers[key]
	if !ok || current.id != id {
		return false
	}
	delete(s.timers, key)
	return true
}

func (s *Scheduler) Cancel(key timerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[key]; ok {
		existing.timer.Stop()
		delete(s.timers, key)
	}
}

// CancelGame drops every pending timer for code.
func (s *Scheduler) CancelGame(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, existing := range s.timers {
		if key.code == code {
			existing.timer.Stop()
			delete(s.timers, key)
		}
	}
}

// Pending reports how many timers are outstanding for code.
func (s *Scheduler) Pending(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.timers {
		if key.code == code {
			n++
		}
	}
	return n
}

func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for key, existing := range s.timers {
		existing.timer.Stop()
		delete(s.timers, key)
	}
}
