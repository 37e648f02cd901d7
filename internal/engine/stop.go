package engine

import "sync/atomic"

// StopFlag is a cooperative soft-stop signal. It is checked only at
// submission boundaries: in-flight transfers always finish, and no new
// submissions occur once the flag is set.
type StopFlag struct {
	v atomic.Bool
}

// Trigger sets the flag. Idempotent.
func (s *StopFlag) Trigger() {
	s.v.Store(true)
}

// Stopped reports whether the flag is set.
func (s *StopFlag) Stopped() bool {
	return s.v.Load()
}
