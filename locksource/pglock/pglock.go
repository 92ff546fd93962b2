// Package pglock implements [locksource.ContextLock] on PostgreSQL
// session advisory locks.
//
// Each held lock pins one pooled connection for its lifetime: a session
// advisory lock belongs to the connection that took it, so the returned
// Context is canceled when that connection is observed dead, and the
// CancelFunc releases both the lock and the connection.
package pglock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quay/zlog"

	"github.com/pubregistry/registry/locksource"
)

// Locker provides context-scoped locks backed by advisory locks.
//
// A Locker holds a small dedicated pool, sized independently of the
// application's main pool so lock traffic can never starve queries (and
// vice versa). Close must be called to release it.
type Locker struct {
	pool *pgxpool.Pool
}

var _ locksource.ContextLock = (*Locker)(nil)

// liveness is how often a held lock's connection is pinged, and the
// ceiling on how long a canceled caller's unlock query may run.
const liveness = 5 * time.Second

// New creates a Locker from the provided pool configuration.
//
// The configuration is copied and resized down before use; the caller's
// own pool is untouched. The passed Context bounds only the initial
// connectivity check.
func New(ctx context.Context, cfg *pgxpool.Config) (*Locker, error) {
	cfg = cfg.Copy()
	cfg.MaxConns = 2
	cfg.MinConns = 1
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pglock: creating lock pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pglock: checking connectivity: %w", err)
	}
	return &Locker{pool: pool}, nil
}

// Close releases the underlying pool. Any lock still held is released
// server-side when its connection closes.
func (l *Locker) Close() {
	l.pool.Close()
}

// keyify hashes key into the bigint keyspace advisory locks use.
func keyify(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// TryLock implements [locksource.ContextLock]. If the lock is held by
// any session, including another Locker in this process, the returned
// Context is already canceled.
func (l *Locker) TryLock(parent context.Context, key string) (context.Context, context.CancelFunc) {
	child, cancel := context.WithCancel(parent)
	conn, err := l.pool.Acquire(parent)
	if err != nil {
		cancel()
		return child, func() {}
	}
	var ok bool
	if err := conn.QueryRow(parent, `SELECT pg_try_advisory_lock($1);`, keyify(key)).Scan(&ok); err != nil || !ok {
		conn.Release()
		cancel()
		return child, func() {}
	}
	return child, l.watch(child, cancel, conn, key)
}

// Lock implements [locksource.ContextLock]. The advisory-lock query
// blocks server-side until the lock is granted or parent is canceled.
func (l *Locker) Lock(parent context.Context, key string) (context.Context, context.CancelFunc) {
	child, cancel := context.WithCancel(parent)
	conn, err := l.pool.Acquire(parent)
	if err != nil {
		cancel()
		return child, func() {}
	}
	if _, err := conn.Exec(parent, `SELECT pg_advisory_lock($1);`, keyify(key)); err != nil {
		conn.Release()
		cancel()
		return child, func() {}
	}
	return child, l.watch(child, cancel, conn, key)
}

// watch pings the lock's connection until the lock is released,
// canceling the child Context if the connection is observed dead. The
// returned CancelFunc is safe to call more than once.
func (l *Locker) watch(child context.Context, cancel context.CancelFunc, conn *pgxpool.Conn, key string) context.CancelFunc {
	released := make(chan struct{})
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		t := time.NewTicker(liveness)
		defer t.Stop()
		for {
			select {
			case <-released:
				return
			case <-child.Done():
				return
			case <-t.C:
				pctx, done := context.WithTimeout(context.Background(), liveness)
				err := conn.Ping(pctx)
				done()
				if err != nil {
					zlog.Warn(child).
						Err(err).
						Str("key", key).
						Msg("pglock: lock connection lost")
					cancel()
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(released)
			cancel()
			// The connection is not safe for concurrent use; wait out any
			// in-flight liveness ping before the unlock query.
			<-idle
			// The caller's Context may already be canceled; time-box the
			// unlock on its own deadline.
			uctx, done := context.WithTimeout(context.Background(), liveness)
			defer done()
			if _, err := conn.Exec(uctx, `SELECT pg_advisory_unlock($1);`, keyify(key)); err != nil {
				zlog.Debug(uctx).
					Err(err).
					Str("key", key).
					Msg("pglock: unlock failed, releasing connection")
			}
			conn.Release()
		})
	}
}
