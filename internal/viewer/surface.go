package viewer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openyouth/livehall/internal/core"
	"github.com/openyouth/livehall/internal/domain"
)

type BindingID string

// SurfaceBinder owns the binding relationship between one RenderSurface
// and at most one video stream. Binding a new stream always releases the
// previous one first.
type SurfaceBinder struct {
	surface core.RenderSurface
	checks  []time.Duration
	guard   *LifecycleGuard
	log     zerolog.Logger

	onPlayback func(domain.PlaybackState)
	onAdvisory func(error)

	mu  sync.Mutex
	cur *binding
}

type binding struct {
	id     BindingID
	src    core.MediaSource
	cancel context.CancelFunc
	frames atomic.Uint64
}

func newSurfaceBinder(
	surface core.RenderSurface,
	checks []time.Duration,
	guard *LifecycleGuard,
	onPlayback func(domain.PlaybackState),
	onAdvisory func(error),
	logger zerolog.Logger,
) *SurfaceBinder {
	return &SurfaceBinder{
		surface:    surface,
		checks:     checks,
		guard:      guard,
		onPlayback: onPlayback,
		onAdvisory: onAdvisory,
		log:        logger,
	}
}

// Bind attaches src to the surface, releasing any prior binding first.
func (b *SurfaceBinder) Bind(src core.MediaSource) BindingID {
	ctx, cancel := context.WithCancel(b.guard.Context())
	bd := &binding{
		id:     BindingID(uuid.NewString()),
		src:    src,
		cancel: cancel,
	}

	b.mu.Lock()
	prev := b.cur
	b.cur = bd
	b.mu.Unlock()
	if prev != nil {
		b.release(prev)
	}

	b.guard.Do(func() { b.onPlayback(domain.PlaybackAwaitingFirstFrame) })
	b.log.Info().
		Str("module", "viewer.surface").
		Str("binding", string(bd.id)).
		Str("surface", b.surface.ID()).
		Msg("bound stream to surface")

	go b.pump(ctx, bd)
	go b.watchFirstFrame(ctx, bd)
	return bd.id
}

// Unbind releases the binding if it is still current. Idempotent; safe
// after the binding was already replaced or torn down.
func (b *SurfaceBinder) Unbind(id BindingID) {
	b.mu.Lock()
	bd := b.cur
	if bd == nil || bd.id != id {
		b.mu.Unlock()
		return
	}
	b.cur = nil
	b.mu.Unlock()

	b.release(bd)
	b.guard.Do(func() { b.onPlayback(domain.PlaybackIdle) })
}

// ReleaseAll drops the current binding, if any. Called at teardown.
func (b *SurfaceBinder) ReleaseAll() {
	b.mu.Lock()
	bd := b.cur
	b.cur = nil
	b.mu.Unlock()
	if bd != nil {
		b.release(bd)
	}
}

// Bound reports whether a binding is currently active.
func (b *SurfaceBinder) Bound() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur != nil
}

func (b *SurfaceBinder) release(bd *binding) {
	bd.cancel()
	bd.src.Close()
	b.surface.Release()
	b.log.Info().
		Str("module", "viewer.surface").
		Str("binding", string(bd.id)).
		Msg("released binding")
}

func (b *SurfaceBinder) current(bd *binding) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur == bd
}

// pump forwards decoded frames to the surface until the binding ends.
func (b *SurfaceBinder) pump(ctx context.Context, bd *binding) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, err := bd.src.ReadRTP()
		if err != nil {
			b.log.Info().
				Str("module", "viewer.surface").
				Str("binding", string(bd.id)).
				Err(err).
				Msg("stream ended")
			return
		}
		first := bd.frames.Add(1) == 1
		if err := b.surface.WriteFrame(pkt); err != nil {
			b.log.Error().
				Str("module", "viewer.surface").
				Str("binding", string(bd.id)).
				Err(err).
				Msg("surface write error, dropping frame")
		}
		if first {
			b.guard.Do(func() {
				if b.current(bd) {
					b.onPlayback(domain.PlaybackPlaying)
					b.onAdvisory(nil)
				}
			})
		}
	}
}

// watchFirstFrame checks frame arrival at each configured delay after
// binding. Only the final check declares a stall, and a stall is
// advisory: the pump still promotes to Playing on a late frame.
func (b *SurfaceBinder) watchFirstFrame(ctx context.Context, bd *binding) {
	start := time.Now()
	for i, offset := range b.checks {
		wait := offset - time.Since(start)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if bd.frames.Load() > 0 {
			return
		}
		if i < len(b.checks)-1 {
			b.log.Debug().
				Str("module", "viewer.surface").
				Str("binding", string(bd.id)).
				Dur("elapsed", time.Since(start)).
				Msg("no frame yet")
		}
	}
	b.guard.Do(func() {
		if !b.current(bd) || bd.frames.Load() > 0 {
			return
		}
		b.log.Warn().
			Str("module", "viewer.surface").
			Str("binding", string(bd.id)).
			Msg("no frame before deadline, reporting stall")
		b.onPlayback(domain.PlaybackStalled)
		b.onAdvisory(domain.ErrRenderStall)
	})
}
