package regtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/metadatastore"
)

// MetadataStore is a map-backed metadatastore.Store used by
// package-level unit tests in place of a real Postgres instance.
type MetadataStore struct {
	mu sync.Mutex

	packages        map[string]*registry.Package
	versions        map[string]map[string]*registry.PackageVersion
	assets          map[string][]*registry.PackageVersionAsset
	deletedVersions map[string]map[string]struct{}
	moderated       map[string]*registry.ModeratedName // by similarity key
	outbox          map[string]*registry.OutboxMessage
	auditLog        []*registry.AuditLogRecord
}

// NewMetadataStore returns an empty store ready for use.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		packages:        make(map[string]*registry.Package),
		versions:        make(map[string]map[string]*registry.PackageVersion),
		assets:          make(map[string][]*registry.PackageVersionAsset),
		deletedVersions: make(map[string]map[string]struct{}),
		moderated:       make(map[string]*registry.ModeratedName),
		outbox:          make(map[string]*registry.OutboxMessage),
	}
}

var _ metadatastore.Store = (*MetadataStore)(nil)

func clonePackage(p *registry.Package) *registry.Package {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Uploaders = append([]string(nil), p.Uploaders...)
	cp.DeletedVersions = nil // derived separately
	return &cp
}

func cloneVersion(v *registry.PackageVersion) *registry.PackageVersion {
	if v == nil {
		return nil
	}
	cp := *v
	cp.Libraries = append([]string(nil), v.Libraries...)
	return &cp
}

// GetPackage implements metadatastore.Store.
func (s *MetadataStore) GetPackage(ctx context.Context, name string) (*registry.Package, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[name]
	return clonePackage(p), ok, nil
}

// ListVersions implements metadatastore.Store.
func (s *MetadataStore) ListVersions(ctx context.Context, name string) ([]*registry.PackageVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*registry.PackageVersion
	for _, v := range s.versions[name] {
		out = append(out, cloneVersion(v))
	}
	return out, nil
}

// GetVersion implements metadatastore.Store.
func (s *MetadataStore) GetVersion(ctx context.Context, name, version string) (*registry.PackageVersion, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[name][version]
	return cloneVersion(v), ok, nil
}

// ListAssets implements metadatastore.Store.
func (s *MetadataStore) ListAssets(ctx context.Context, name, version string) ([]*registry.PackageVersionAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := name + "@" + version
	out := make([]*registry.PackageVersionAsset, len(s.assets[key]))
	for i, a := range s.assets[key] {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

// NameConflict implements metadatastore.Store.
func (s *MetadataStore) NameConflict(ctx context.Context, key string) (string, *registry.ModeratedName, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active string
	for _, p := range s.packages {
		if registry.SimilarityKey(p.Name) == key {
			active = p.Name
			break
		}
	}
	if m, ok := s.moderated[key]; ok {
		cp := *m
		return active, &cp, nil
	}
	return active, nil, nil
}

// DeletedVersions implements metadatastore.Store.
func (s *MetadataStore) DeletedVersions(ctx context.Context, name string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{})
	for v := range s.deletedVersions[name] {
		out[v] = struct{}{}
	}
	return out, nil
}

// AllActiveNames implements metadatastore.Store.
func (s *MetadataStore) AllActiveNames(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.packages))
	for name, p := range s.packages {
		if p.IsBlocked {
			continue
		}
		out[name] = registry.SimilarityKey(name)
	}
	return out, nil
}

// AllModeratedKeys implements metadatastore.Store.
func (s *MetadataStore) AllModeratedKeys(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.moderated))
	for k := range s.moderated {
		out[k] = struct{}{}
	}
	return out, nil
}

// PendingOutbox implements metadatastore.Store.
func (s *MetadataStore) PendingOutbox(ctx context.Context, now time.Time, limit int) ([]*registry.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*registry.OutboxMessage
	for _, m := range s.outbox {
		if !m.DeliveredAt.IsZero() || m.NextAttemptAt.After(now) || now.After(m.ExpiresAt) {
			continue
		}
		cp := *m
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// RecordOutboxAttempt implements metadatastore.Store.
func (s *MetadataStore) RecordOutboxAttempt(ctx context.Context, id string, delivered bool, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return nil
	}
	m.Attempts++
	if delivered {
		m.DeliveredAt = nextAttemptAt
	} else {
		m.NextAttemptAt = nextAttemptAt
	}
	return nil
}

// AuditLog returns every audit record written so far, for assertions in
// tests.
func (s *MetadataStore) AuditLog() []*registry.AuditLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*registry.AuditLogRecord, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

// WithinPackageTx implements metadatastore.Store. The store's single
// mutex stands in for the real backend's single-entity-group
// transaction isolation: only one WithinPackageTx call (for any
// package) runs at a time, which is stricter than Postgres's per-group
// isolation but never weaker, so every invariant it's meant to enforce
// still holds under this fixture.
func (s *MetadataStore) WithinPackageTx(ctx context.Context, pkgName string, fn func(ctx context.Context, tx metadatastore.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &memTx{store: s, pkgName: pkgName}
	return fn(ctx, t)
}

type memTx struct {
	store   *MetadataStore
	pkgName string
}

var _ metadatastore.Tx = (*memTx)(nil)

func (t *memTx) GetPackage(ctx context.Context) (*registry.Package, bool, error) {
	p, ok := t.store.packages[t.pkgName]
	return clonePackage(p), ok, nil
}

func (t *memTx) GetVersion(ctx context.Context, version string) (*registry.PackageVersion, bool, error) {
	v, ok := t.store.versions[t.pkgName][version]
	return cloneVersion(v), ok, nil
}

func (t *memTx) ListVersions(ctx context.Context) ([]*registry.PackageVersion, error) {
	var out []*registry.PackageVersion
	for _, v := range t.store.versions[t.pkgName] {
		out = append(out, cloneVersion(v))
	}
	return out, nil
}

func (t *memTx) CountVersions(ctx context.Context) (int, error) {
	return len(t.store.versions[t.pkgName]), nil
}

func (t *memTx) DeletedVersions(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for v := range t.store.deletedVersions[t.pkgName] {
		out[v] = struct{}{}
	}
	return out, nil
}

func (t *memTx) PutPackage(ctx context.Context, p *registry.Package) error {
	t.store.packages[p.Name] = clonePackage(p)
	return nil
}

func (t *memTx) PutVersion(ctx context.Context, v *registry.PackageVersion, assets []*registry.PackageVersionAsset) error {
	if t.store.versions[v.PackageName] == nil {
		t.store.versions[v.PackageName] = make(map[string]*registry.PackageVersion)
	}
	t.store.versions[v.PackageName][v.Version] = cloneVersion(v)
	key := v.PackageName + "@" + v.Version
	cloned := make([]*registry.PackageVersionAsset, len(assets))
	for i, a := range assets {
		cp := *a
		cloned[i] = &cp
	}
	t.store.assets[key] = cloned
	return nil
}

func (t *memTx) SetRetracted(ctx context.Context, version string, retracted bool, at time.Time) error {
	v, ok := t.store.versions[t.pkgName][version]
	if !ok {
		return nil
	}
	v.IsRetracted = retracted
	if retracted {
		v.RetractedAt = at
	} else {
		v.RetractedAt = time.Time{}
	}
	return nil
}

func (t *memTx) HardDeleteVersion(ctx context.Context, version string) error {
	delete(t.store.versions[t.pkgName], version)
	delete(t.store.assets, t.pkgName+"@"+version)
	if t.store.deletedVersions[t.pkgName] == nil {
		t.store.deletedVersions[t.pkgName] = make(map[string]struct{})
	}
	t.store.deletedVersions[t.pkgName][version] = struct{}{}
	return nil
}

func (t *memTx) TombstonePackage(ctx context.Context, reason string) error {
	p, ok := t.store.packages[t.pkgName]
	if !ok {
		return nil
	}
	for v := range t.store.versions[t.pkgName] {
		delete(t.store.assets, t.pkgName+"@"+v)
	}
	delete(t.store.versions, t.pkgName)
	delete(t.store.packages, t.pkgName)
	key := registry.SimilarityKey(p.Name)
	t.store.moderated[key] = &registry.ModeratedName{
		Name: p.Name, SimilarityKey: key, Reason: reason, Created: time.Now().UTC(),
	}
	return nil
}

func (t *memTx) InsertAuditLog(ctx context.Context, rec *registry.AuditLogRecord) error {
	t.store.auditLog = append(t.store.auditLog, rec)
	return nil
}

func (t *memTx) InsertOutboxMessage(ctx context.Context, msg *registry.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	t.store.outbox[msg.ID] = msg
	return nil
}

func (t *memTx) ReserveName(ctx context.Context, name, similarityKey string) error {
	for existingName, p := range t.store.packages {
		if existingName == name {
			continue
		}
		if registry.SimilarityKey(p.Name) == similarityKey {
			return &registry.Error{
				Op: "ReserveName", Kind: registry.ErrPackageRejected,
				Reason:  registry.ReasonSimilarToActive,
				Message: "a package with a similar name already exists: " + p.Name,
			}
		}
	}
	return nil
}
