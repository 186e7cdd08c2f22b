// Package timer implements the three logical timers the consensus core
// depends on: election, vote, and heartbeat. Restart and Cancel are both
// idempotent, and a timer that has been canceled (or restarted) before a
// pending fire reaches its callback simply drops that stale fire — the
// core must still re-check role and term on every fire, since an
// in-flight event can race a cancellation (see internal/consensus, every
// timeout handler re-validates before acting).
package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind names which of the three timers fired, for logging and for the
// event bus key.
type Kind int

const (
	Election Kind = iota
	Vote
	Heartbeat
)

func (k Kind) String() string {
	switch k {
	case Election:
		return "election"
	case Vote:
		return "vote"
	case Heartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Fired is delivered to the registered callback when a schedule expires.
type Fired struct {
	Kind Kind
}

// Timer is a single restartable, cancelable one-shot schedule. Restarting
// or canceling bumps a generation counter so that a fire already in
// flight, racing a Restart/Cancel on another goroutine, silently becomes a
// no-op instead of delivering a stale event.
type Timer struct {
	kind     Kind
	onFire   func(Fired)
	mu       sync.Mutex
	t        *time.Timer
	gen      uint64
	canceled int32
}

// New creates a timer that is not yet scheduled. Call Restart to arm it.
func New(kind Kind, onFire func(Fired)) *Timer {
	return &Timer{kind: kind, onFire: onFire}
}

// Restart cancels any pending fire and schedules a new one after d.
func (tm *Timer) Restart(d time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	atomic.StoreInt32(&tm.canceled, 0)
	if tm.t != nil {
		tm.t.Stop()
	}
	tm.gen++
	gen := tm.gen
	tm.t = time.AfterFunc(d, func() { tm.fire(gen) })
}

// Cancel stops any pending fire. Safe to call when already canceled or
// never armed.
func (tm *Timer) Cancel() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	atomic.StoreInt32(&tm.canceled, 1)
	if tm.t != nil {
		tm.t.Stop()
	}
	tm.gen++
}

func (tm *Timer) fire(gen uint64) {
	tm.mu.Lock()
	stale := gen != tm.gen || atomic.LoadInt32(&tm.canceled) == 1
	tm.mu.Unlock()
	if stale {
		return
	}
	tm.onFire(Fired{Kind: tm.kind})
}

// Service owns the three timers a node needs and wires their fires to the
// event bus via onFire, which the node supplies at construction.
type Service struct {
	Election  *Timer
	Vote      *Timer
	Heartbeat *Timer
}

// NewService creates the election, vote, and heartbeat timers, all
// wired to a single dispatch callback distinguishing them by Kind.
func NewService(onFire func(Fired)) *Service {
	return &Service{
		Election:  New(Election, onFire),
		Vote:      New(Vote, onFire),
		Heartbeat: New(Heartbeat, onFire),
	}
}

// StopAll cancels every timer, e.g. on node shutdown.
func (s *Service) StopAll() {
	s.Election.Cancel()
	s.Vote.Cancel()
	s.Heartbeat.Cancel()
}
