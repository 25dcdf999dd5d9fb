package domain

// ConnectionState is the session-level connection lifecycle. Closed is
// terminal; no transition is accepted after it.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// rank orders states for monotonic transitions:
// Idle < Connecting < {Connected, Disconnected, Failed} < Closed.
func (s ConnectionState) rank() int {
	switch s {
	case StateIdle:
		return 0
	case StateConnecting:
		return 1
	case StateConnected, StateDisconnected, StateFailed:
		return 2
	case StateClosed:
		return 3
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the
// monotonic ordering. States of equal rank may replace each other, which
// is how Connected and Disconnected alternate during transport recovery.
func (s ConnectionState) CanTransition(next ConnectionState) bool {
	if s == StateClosed {
		return false
	}
	return next.rank() >= s.rank()
}

// Health is the debounced summary of connection quality shown to the UI,
// distinct from the raw ConnectionState.
type Health int

const (
	HealthGood Health = iota
	HealthDegraded
	HealthFailed
)

func (h Health) String() string {
	switch h {
	case HealthGood:
		return "good"
	case HealthDegraded:
		return "degraded"
	case HealthFailed:
		return "failed"
	}
	return "unknown"
}

// PlaybackState tracks the single video surface. Stalled is advisory and
// not terminal; a late first frame moves it to Playing.
type PlaybackState int

const (
	PlaybackIdle PlaybackState = iota
	PlaybackAwaitingFirstFrame
	PlaybackPlaying
	PlaybackStalled
)

func (p PlaybackState) String() string {
	switch p {
	case PlaybackIdle:
		return "idle"
	case PlaybackAwaitingFirstFrame:
		return "awaiting_first_frame"
	case PlaybackPlaying:
		return "playing"
	case PlaybackStalled:
		return "stalled"
	}
	return "unknown"
}
