package gateway

import (
	"sync"
	"time"
)

// Session holds the per-session liveness state shared between the
// heartbeat loop (ping timing) and the frame consumer (sequence, latency
// on ack). Every field is guarded by one mutex so concurrent updates
// from the two loops can never produce torn reads.
type Session struct {
	mu         sync.Mutex
	seq        int64
	interval   time.Duration
	pingSentAt time.Time
	latency    time.Duration
	readyAt    time.Time
}

// Reset prepares the session for a fresh Identify: sequence restarts at
// zero, prior timing is discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
	s.interval = 0
	s.pingSentAt = time.Time{}
	s.latency = 0
	s.readyAt = time.Time{}
}

// Sequence returns the last observed dispatch sequence. This is the value
// echoed in every heartbeat frame.
func (s *Session) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// ObserveSequence records a dispatch sequence. The stored value is
// monotonically non-decreasing for the session lifetime; a stale or
// replayed lower sequence never rewinds it.
func (s *Session) ObserveSequence(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.seq {
		s.seq = n
	}
}

// SetHeartbeatInterval stores the server-dictated heartbeat interval
// captured from the Hello frame.
func (s *Session) SetHeartbeatInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// HeartbeatInterval returns the server-dictated heartbeat interval.
func (s *Session) HeartbeatInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// MarkPingSent records the send instant of a heartbeat for round-trip
// measurement.
func (s *Session) MarkPingSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingSentAt = time.Now()
}

// ObserveAck computes the round trip from the last recorded ping send and
// stores it as the current latency.
func (s *Session) ObserveAck() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingSentAt.IsZero() {
		return 0
	}
	s.latency = time.Since(s.pingSentAt)
	return s.latency
}

// Latency returns the last observed heartbeat round trip.
func (s *Session) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

// MarkReady records when the session reached Ready.
func (s *Session) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyAt = time.Now()
}

// ReadyAt returns when the session reached Ready, zero if it never did.
func (s *Session) ReadyAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyAt
}
