package viewer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openyouth/livehall/internal/domain"
)

// HealthMonitor maps raw connection-state transitions to the debounced
// Good/Degraded/Failed signal. A Disconnected blip shorter than the
// debounce window never reaches the UI; Failed is surfaced immediately.
type HealthMonitor struct {
	debounce time.Duration
	guard    *LifecycleGuard
	onChange func(domain.Health)
	log      zerolog.Logger

	mu      sync.Mutex
	current domain.Health
	gen     int
	pending bool
}

func newHealthMonitor(debounce time.Duration, guard *LifecycleGuard, onChange func(domain.Health), logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		debounce: debounce,
		guard:    guard,
		onChange: onChange,
		current:  domain.HealthGood,
		log:      logger,
	}
}

// Health returns the current debounced signal.
func (m *HealthMonitor) Health() domain.Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnStateChange feeds one raw transition into the monitor. Calls are
// serialized by the session dispatcher.
func (m *HealthMonitor) OnStateChange(prev, cur domain.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch cur {
	case domain.StateConnecting, domain.StateConnected:
		m.cancelPendingLocked()
		m.setLocked(domain.HealthGood)
	case domain.StateDisconnected:
		if m.pending {
			return
		}
		m.pending = true
		m.gen++
		gen := m.gen
		time.AfterFunc(m.debounce, func() { m.degradeIfStillPending(gen) })
	case domain.StateFailed:
		m.cancelPendingLocked()
		m.setLocked(domain.HealthFailed)
	case domain.StateClosed:
		m.cancelPendingLocked()
	}
}

func (m *HealthMonitor) degradeIfStillPending(gen int) {
	m.guard.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.pending || gen != m.gen {
			return
		}
		m.pending = false
		m.setLocked(domain.HealthDegraded)
	})
}

func (m *HealthMonitor) cancelPendingLocked() {
	m.pending = false
	m.gen++
}

func (m *HealthMonitor) setLocked(h domain.Health) {
	if h == m.current {
		return
	}
	m.log.Info().
		Str("module", "viewer.health").
		Str("from", m.current.String()).
		Str("to", h.String()).
		Msg("health change")
	m.current = h
	if m.onChange != nil {
		m.onChange(h)
	}
}
