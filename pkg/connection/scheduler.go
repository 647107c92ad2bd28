package connection

import (
	"sync"
	"time"
)

// Scheduler arms a single timer that fires a reconnect callback after the
// next backoff delay. Fatal handshake failures bypass it entirely; the
// engine simply never calls Schedule for them.
type Scheduler struct {
	mu sync.Mutex

	backoff *Backoff
	fn      func()

	timer   *time.Timer
	enabled bool
}

// NewScheduler creates a scheduler that invokes fn when a scheduled retry
// comes due. The scheduler starts disabled; call Start before Schedule.
func NewScheduler(backoff *Backoff, fn func()) *Scheduler {
	if backoff == nil {
		backoff = NewBackoff()
	}
	return &Scheduler{
		backoff: backoff,
		fn:      fn,
	}
}

// Start enables scheduling.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
}

// Schedule arms the retry timer with the next backoff delay and records the
// failed attempt. It returns the delay and true, or zero and false when the
// scheduler is disabled or a retry is already pending.
func (s *Scheduler) Schedule() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.timer != nil {
		return 0, false
	}

	delay := s.backoff.Next()
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.timer = nil
		enabled := s.enabled
		s.mu.Unlock()

		if enabled {
			s.fn()
		}
	})
	return delay, true
}

// Stop cancels any pending timer and disables further scheduling until
// Start is called again. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Reset clears the attempt counter after a successful handshake.
func (s *Scheduler) Reset() {
	s.backoff.Reset()
}

// Attempts returns the number of failed cycles since the last reset.
func (s *Scheduler) Attempts() int {
	return s.backoff.Attempts()
}

// Pending reports whether a retry timer is currently armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
