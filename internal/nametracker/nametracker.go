// Package nametracker maintains an in-memory index of current package
// names and moderated (tombstoned) names, answering "is this new name
// acceptable?" with the similarity check. Writers update it synchronously on success; a
// bounded background scan keeps it fresh against concurrent writers
// on other replicas; a reader whose decision is close to a reject
// threshold falls back to one authoritative MetadataStore read.
package nametracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quay/zlog"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/metadatastore"
)

// Tracker is the in-memory name index.
type Tracker struct {
	store metadatastore.Store

	mu        sync.RWMutex
	active    map[string]string // similarity key -> display name
	moderated map[string]string // similarity key -> reason
}

// New returns a Tracker backed by store. Callers should call Refresh
// once before serving traffic and then periodically via RunBackgroundScan.
func New(store metadatastore.Store) *Tracker {
	return &Tracker{
		store:     store,
		active:    make(map[string]string),
		moderated: make(map[string]string),
	}
}

// Refresh does a full rescan of the MetadataStore's active and moderated
// name sets, replacing the in-memory index atomically.
func (t *Tracker) Refresh(ctx context.Context) error {
	activeNames, err := t.store.AllActiveNames(ctx)
	if err != nil {
		return fmt.Errorf("nametracker: refreshing active names: %w", err)
	}
	moderatedKeys, err := t.store.AllModeratedKeys(ctx)
	if err != nil {
		return fmt.Errorf("nametracker: refreshing moderated names: %w", err)
	}
	active := make(map[string]string, len(activeNames))
	for name, key := range activeNames {
		active[key] = name
	}
	moderated := make(map[string]string, len(moderatedKeys))
	for key := range moderatedKeys {
		moderated[key] = "moderated"
	}
	t.mu.Lock()
	t.active = active
	t.moderated = moderated
	t.mu.Unlock()
	return nil
}

// RunBackgroundScan calls Refresh every interval until ctx is canceled,
// logging (not failing) on error so a transient MetadataStore blip
// doesn't take the process down.
func (t *Tracker) RunBackgroundScan(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Refresh(ctx); err != nil {
				zlog.Error(ctx).Err(err).Msg("nametracker: background scan failed")
			}
		}
	}
}

// Observe records that name is now an active package name, without
// waiting for the next background scan — called synchronously by a
// writer right after a successful package creation.
func (t *Tracker) Observe(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[registry.SimilarityKey(name)] = name
}

// ObserveModerated records that name has just been tombstoned.
func (t *Tracker) ObserveModerated(name, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := registry.SimilarityKey(name)
	delete(t.active, key)
	t.moderated[key] = reason
}

// CheckNewName validates a candidate brand-new package name against the
// identifier shape, the vendor reserved-prefix list, and the similarity
// index, falling back to an authoritative MetadataStore read
// when the in-memory index reports no conflict (the "close to a reject
// threshold" case — since the similarity check is already a full key
// comparison rather than a fuzzy score, the safe fallback is simply: any
// local miss gets one more authoritative check before acceptance).
func (t *Tracker) CheckNewName(ctx context.Context, name string, isVendorAgent bool, reservedPrefixes []string) error {
	if !registry.ValidIdentifier(name) {
		return &registry.Error{
			Op: "nametracker.CheckNewName", Kind: registry.ErrInvalidInput,
			Message: fmt.Sprintf("%q is not a valid package name", name),
		}
	}
	if registry.IsReservedWord(name) {
		return &registry.Error{
			Op: "nametracker.CheckNewName", Kind: registry.ErrInvalidInput,
			Message: fmt.Sprintf("%q is a reserved word", name),
		}
	}
	if !isVendorAgent {
		lower := strings.ToLower(name)
		for _, prefix := range reservedPrefixes {
			if strings.HasPrefix(lower, strings.ToLower(prefix)) {
				return &registry.Error{
					Op: "nametracker.CheckNewName", Kind: registry.ErrPackageRejected,
					Reason:  registry.ReasonNameReserved,
					Message: fmt.Sprintf("%q uses a reserved prefix", name),
				}
			}
		}
	}

	key := registry.SimilarityKey(name)

	t.mu.RLock()
	activeName, activeHit := t.active[key]
	_, moderatedHit := t.moderated[key]
	t.mu.RUnlock()

	if activeHit && activeName != name {
		return similarToActiveError(name, activeName)
	}
	if moderatedHit {
		return similarToModeratedError(name)
	}
	if activeHit || moderatedHit {
		return nil
	}

	// Local index reports no conflict: fall back to one authoritative
	// read before accepting a brand-new name.
	activeName, moderated, err := t.store.NameConflict(ctx, key)
	if err != nil {
		return fmt.Errorf("nametracker: authoritative name check: %w", err)
	}
	if activeName != "" && activeName != name {
		return similarToActiveError(name, activeName)
	}
	if moderated != nil {
		return similarToModeratedError(name)
	}
	return nil
}

func similarToActiveError(candidate, existing string) error {
	return &registry.Error{
		Op: "nametracker.CheckNewName", Kind: registry.ErrPackageRejected,
		Reason: registry.ReasonSimilarToActive,
		Message: fmt.Sprintf(
			"%q is too similar to the existing package %q (see https://pub.example/packages/%s)",
			candidate, existing, existing),
	}
}

func similarToModeratedError(candidate string) error {
	return &registry.Error{
		Op: "nametracker.CheckNewName", Kind: registry.ErrPackageRejected,
		Reason:  registry.ReasonSimilarToModerated,
		Message: fmt.Sprintf("%q is too similar to a name that has been removed", candidate),
	}
}
