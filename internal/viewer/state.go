package viewer

import (
	"sync"

	"github.com/openyouth/livehall/internal/domain"
)

// Snapshot is the read-only projection the UI observes. Updated on every
// internal transition.
type Snapshot struct {
	ConnectionState domain.ConnectionState `json:"-"`
	Health          domain.Health          `json:"-"`
	Playback        domain.PlaybackState   `json:"-"`
	LastError       string                 `json:"last_error,omitempty"`

	// Wire forms for JSON consumers.
	ConnectionStateName string `json:"connection_state"`
	HealthName          string `json:"health"`
	PlaybackName        string `json:"playback_state"`
}

func (s Snapshot) withNames() Snapshot {
	s.ConnectionStateName = s.ConnectionState.String()
	s.HealthName = s.Health.String()
	s.PlaybackName = s.Playback.String()
	return s
}

// Projection holds the coherent session state and fans out snapshots to
// observers. Writers are the session client and its monitors; everyone
// else only reads.
type Projection struct {
	mu        sync.RWMutex
	snap      Snapshot
	nextObs   int
	observers map[int]func(Snapshot)
}

func newProjection() *Projection {
	return &Projection{observers: make(map[int]func(Snapshot))}
}

func (p *Projection) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.withNames()
}

// Observe registers fn for every subsequent snapshot. The returned
// function unregisters it.
func (p *Projection) Observe(fn func(Snapshot)) func() {
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

func (p *Projection) update(mutate func(*Snapshot)) {
	p.mu.Lock()
	mutate(&p.snap)
	snap := p.snap.withNames()
	obs := make([]func(Snapshot), 0, len(p.observers))
	for _, fn := range p.observers {
		obs = append(obs, fn)
	}
	p.mu.Unlock()
	for _, fn := range obs {
		fn(snap)
	}
}

func (p *Projection) setConnection(s domain.ConnectionState) {
	p.update(func(sn *Snapshot) { sn.ConnectionState = s })
}

func (p *Projection) setHealth(h domain.Health) {
	p.update(func(sn *Snapshot) { sn.Health = h })
}

func (p *Projection) setPlayback(ps domain.PlaybackState) {
	p.update(func(sn *Snapshot) { sn.Playback = ps })
}

func (p *Projection) setError(err error) {
	p.update(func(sn *Snapshot) {
		if err != nil {
			sn.LastError = err.Error()
		} else {
			sn.LastError = ""
		}
	})
}
