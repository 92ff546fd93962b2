// Package cachelayer is the read-through cache for hot Registry read
// paths (package-exists?, versions listing, latest version): a Redis
// backend plus an in-process fallback used when no Redis address is
// configured, so a single-replica deployment or a test never needs a
// live Redis.
package cachelayer

import (
	"context"
	"sync"
	"time"
)

// Cache is the interface Registry depends on. Get reports ok=false on a
// miss (including an expired entry); Set stores a value with a TTL; Purge
// removes every key under a prefix (used on publish to invalidate
// every entry for the package).
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Purge(ctx context.Context, prefix string) error
}

// PackageKey and friends build the cache keys Registry reads/purges.
// Keeping them here (rather than letting callers format ad hoc strings)
// means the prefix Purge scans for always matches what Set wrote.
func PackageKey(name string) string    { return "pkg:" + name }
func VersionsKey(name string) string   { return "pkg:" + name + ":versions" }
func LatestKey(name string) string     { return "pkg:" + name + ":latest" }
func PackagePrefix(name string) string { return "pkg:" + name }

// Local is an in-process fallback Cache, a plain mutex-guarded map of
// TTL'd entries. The zero value is ready for use.
type Local struct {
	mu      sync.Mutex
	entries map[string]localEntry
}

type localEntry struct {
	value  []byte
	expiry time.Time
}

var _ Cache = (*Local)(nil)

func (l *Local) init() {
	if l.entries == nil {
		l.entries = make(map[string]localEntry)
	}
}

// Get implements Cache.
func (l *Local) Get(ctx context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	e, ok := l.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiry) {
		delete(l.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache.
func (l *Local) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	l.entries[key] = localEntry{value: value, expiry: time.Now().Add(ttl)}
	return nil
}

// Purge implements Cache. It removes every key with the given prefix.
func (l *Local) Purge(ctx context.Context, prefix string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	for k := range l.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(l.entries, k)
		}
	}
	return nil
}
