package barrier

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScopedActivatorWaitsForEntrants(t *testing.T) {
	b := New()
	b.Enter()

	activated := make(chan struct{})
	go func() {
		release := b.ScopedActivator()
		close(activated)
		release()
	}()

	select {
	case <-activated:
		t.Fatal("activator proceeded before entrant exited")
	case <-time.After(20 * time.Millisecond):
	}

	b.Exit()
	select {
	case <-activated:
	case <-time.After(time.Second):
		t.Fatal("activator never proceeded after entrant exited")
	}
}

func TestEnterBlocksWhileHeld(t *testing.T) {
	b := New()
	release := b.ScopedActivator()

	var entered int32
	go func() {
		b.Enter()
		atomic.StoreInt32(&entered, 1)
		b.Exit()
	}()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&entered), "entrant should block while barrier held")

	release()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&entered))
}
