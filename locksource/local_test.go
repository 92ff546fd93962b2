package locksource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalTryLockContention(t *testing.T) {
	var l Local
	ctx := context.Background()

	_, unlock := l.Lock(ctx, "pkg:foo")

	c, _ := l.TryLock(ctx, "pkg:foo")
	require.Error(t, c.Err(), "TryLock should fail while the key is held")

	unlock()

	c2, unlock2 := l.TryLock(ctx, "pkg:foo")
	require.NoError(t, c2.Err())
	unlock2()
}

func TestLocalLockWaitsThenAcquires(t *testing.T) {
	var l Local
	ctx := context.Background()

	_, unlock := l.Lock(ctx, "pkg:bar")
	acquired := make(chan struct{})
	go func() {
		_, u := l.Lock(context.Background(), "pkg:bar")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired before first was released")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after release")
	}
}
