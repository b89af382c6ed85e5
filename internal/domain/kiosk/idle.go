package kiosk

// IdleSupervisor is the per-session inactivity countdown.
// It is Armed while a session is open and Disarmed at the identity list.
// Time only advances through Tick; the caller owns the real ticker.
type IdleSupervisor struct {
	timeout   int
	remaining int
	armed     bool
}

// NewIdleSupervisor creates a disarmed supervisor with the given timeout in seconds.
// PRE: timeoutSeconds > 0, otherwise DefaultIdleSeconds applies
func NewIdleSupervisor(timeoutSeconds int) IdleSupervisor {
	if timeoutSeconds <= 0 {
		timeoutSeconds = DefaultIdleSeconds
	}
	return IdleSupervisor{timeout: timeoutSeconds}
}

// Arm starts a fresh countdown at the full timeout.
func (s *IdleSupervisor) Arm() {
	s.armed = true
	s.remaining = s.timeout
}

// Disarm cancels the countdown.
func (s *IdleSupervisor) Disarm() {
	s.armed = false
	s.remaining = 0
}

// Touch resets the countdown to the full timeout.
// POST: returns false and does nothing while disarmed
func (s *IdleSupervisor) Touch() bool {
	if !s.armed {
		return false
	}
	s.remaining = s.timeout
	return true
}

// Tick advances the countdown by one second.
// POST: returns true exactly once, when the countdown reaches zero; the
// supervisor is then disarmed
func (s *IdleSupervisor) Tick() bool {
	if !s.armed {
		return false
	}
	s.remaining--
	if s.remaining > 0 {
		return false
	}
	s.Disarm()
	return true
}

// Armed reports whether a countdown is running.
func (s *IdleSupervisor) Armed() bool {
	return s.armed
}

// Remaining returns the seconds left, zero when disarmed.
func (s *IdleSupervisor) Remaining() int {
	return s.remaining
}

// Timeout returns the full countdown length in seconds.
func (s *IdleSupervisor) Timeout() int {
	return s.timeout
}
