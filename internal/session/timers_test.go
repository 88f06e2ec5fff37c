package session

import (
	"sync/atomic"
	"testing"
	"time"

	"party-rounds/internal/game"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSchedulerReplacesTimerUnderSameKey(t *testing.T) {
	s := NewScheduler()
	defer s.Close()
	key := timerKey{code: "ABC123", round: 1, phase: game.PhaseGuessing}

	var first, second atomic.Int32
	s.Schedule(key, 10*time.Millisecond, func() { first.Add(1) })
	s.Schedule(key, 20*time.Millisecond, func() { second.Add(1) })

	waitFor(t, func() bool { return second.Load() == 1 })
	time.Sleep(30 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatalf("replaced timer fired")
	}
	if s.Pending("ABC123") != 0 {
		t.Fatalf("expected fired timer to be released")
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Close()
	keep := timerKey{code: "ABC123", round: 1, phase: game.PhaseVoting}
	drop := timerKey{code: "ABC123", round: 1, phase: game.PhaseInterpreting}
	other := timerKey{code: "XYZ789", round: 2, phase: game.PhaseVoting}

	var fired atomic.Int32
	s.Schedule(keep, time.Hour, func() { fired.Add(1) })
	s.Schedule(drop, 10*time.Millisecond, func() { fired.Add(1) })
	s.Schedule(other, time.Hour, func() { fired.Add(1) })
	s.Cancel(drop)

	time.Sleep(30 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled timer fired")
	}
	if s.Pending("ABC123") != 1 {
		t.Fatalf("expected one pending timer for ABC123, got %d", s.Pending("ABC123"))
	}
	s.CancelGame("ABC123")
	if s.Pending("ABC123") != 0 || s.Pending("XYZ789") != 1 {
		t.Fatalf("CancelGame must only drop timers for its code")
	}
}

func TestSchedulerClosedIgnoresSchedule(t *testing.T) {
	s := NewScheduler()
	s.Close()
	s.Schedule(timerKey{code: "ABC123"}, time.Millisecond, func() { t.Errorf("timer fired after close") })
	time.Sleep(10 * time.Millisecond)
	if s.Pending("ABC123") != 0 {
		t.Fatalf("expected nothing pending after close")
	}
}
