package viewer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardDoRunsWhileActive(t *testing.T) {
	g := NewLifecycleGuard(context.Background())

	ran := false
	require.True(t, g.Do(func() { ran = true }))
	assert.True(t, ran)
	assert.True(t, g.Active())
}

func TestGuardDoSuppressedAfterTeardown(t *testing.T) {
	g := NewLifecycleGuard(context.Background())
	g.Teardown(nil)

	ran := false
	require.False(t, g.Do(func() { ran = true }))
	assert.False(t, ran)
	assert.False(t, g.Active())
}

func TestGuardTeardownExactlyOnce(t *testing.T) {
	g := NewLifecycleGuard(context.Background())

	var releases atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Teardown(func() { releases.Add(1) })
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), releases.Load())
}

func TestGuardContextCanceledAtTeardown(t *testing.T) {
	g := NewLifecycleGuard(context.Background())

	select {
	case <-g.Context().Done():
		t.Fatal("context canceled before teardown")
	default:
	}

	g.Teardown(nil)

	select {
	case <-g.Context().Done():
	default:
		t.Fatal("context not canceled after teardown")
	}
}

func TestGuardLaterTeardownWaitsForFirstRelease(t *testing.T) {
	g := NewLifecycleGuard(context.Background())

	released := make(chan struct{})
	go g.Teardown(func() { close(released) })

	// A concurrent caller must observe the release as completed.
	g.Teardown(func() { t.Fatal("second release must not run") })
	select {
	case <-released:
	default:
		t.Fatal("second Teardown returned before first release completed")
	}
}
