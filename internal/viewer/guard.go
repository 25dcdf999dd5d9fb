package viewer

import (
	"context"
	"sync"
)

// LifecycleGuard gates every asynchronous completion against viewer
// dismissal. The flag flips exactly once; after that no callback may
// commit externally observable state, only release what it received.
type LifecycleGuard struct {
	mu     sync.Mutex
	done   bool
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

func NewLifecycleGuard(parent context.Context) *LifecycleGuard {
	ctx, cancel := context.WithCancel(parent)
	return &LifecycleGuard{ctx: ctx, cancel: cancel}
}

// Context is canceled at teardown; timers and pumps select on it.
func (g *LifecycleGuard) Context() context.Context {
	return g.ctx
}

// Active reports whether teardown has not happened yet.
func (g *LifecycleGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.done
}

// Do runs commit unless teardown has happened, and reports whether it
// ran. The commit executes under the guard's lock, so it cannot
// interleave with the teardown flag flipping.
func (g *LifecycleGuard) Do(commit func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return false
	}
	commit()
	return true
}

// Teardown flips the flag and runs release exactly once. Safe to call
// concurrently with any in-flight operation; later calls return after
// the first release has completed.
func (g *LifecycleGuard) Teardown(release func()) {
	g.once.Do(func() {
		g.mu.Lock()
		g.done = true
		g.mu.Unlock()
		g.cancel()
		if release != nil {
			release()
		}
	})
}
