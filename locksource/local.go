package locksource

import (
	"context"
	"sync"
)

// Local implements [ContextLock] with in-process primitives, for tests
// and single-replica deployments.
//
// The zero Local is ready for use and must not be copied after first
// use.
type Local struct {
	m sync.Map
}

var _ ContextLock = (*Local)(nil)

// gate is the per-key wait channel: present in the map while the key is
// held, closed when it's released.
type gate chan struct{}

// Lock implements [ContextLock].
func (l *Local) Lock(ctx context.Context, key string) (context.Context, context.CancelFunc) {
	for {
		v, held := l.m.LoadOrStore(key, make(gate))
		g := v.(gate)
		if !held {
			child, cancel := context.WithCancel(ctx)
			return child, l.release(g, key, cancel)
		}
		select {
		case <-g:
			// The holder released; race for it again.
		case <-ctx.Done():
			return ctx, func() {}
		}
	}
}

// TryLock implements [ContextLock].
func (l *Local) TryLock(ctx context.Context, key string) (context.Context, context.CancelFunc) {
	child, cancel := context.WithCancel(ctx)
	v, held := l.m.LoadOrStore(key, make(gate))
	if held {
		cancel()
		return child, func() {}
	}
	return child, l.release(v.(gate), key, cancel)
}

// release builds the CancelFunc handed to a lock holder: cancel the
// child Context, drop the key, and wake every waiter.
func (l *Local) release(g gate, key string, cancel context.CancelFunc) context.CancelFunc {
	return func() {
		cancel()
		l.m.Delete(key)
		close(g)
	}
}
