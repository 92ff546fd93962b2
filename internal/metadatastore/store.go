// Package metadatastore is the strongly-consistent entity store behind
// every Registry write: single-package-entity-group transactions (a
// Package, its PackageVersions, and their assets) plus the
// denormalized indexes (moderated names, deleted versions) the
// NameTracker and publish path need.
package metadatastore

import (
	"context"
	"time"

	"github.com/pubregistry/registry"
)

// Store is the non-transactional read surface plus the transaction
// entry point. All reads may be served from a read replica; all writes
// go through WithinPackageTx.
type Store interface {
	// GetPackage reads a Package by name. ok is false if absent.
	GetPackage(ctx context.Context, name string) (pkg *registry.Package, ok bool, err error)
	// ListVersions returns every PackageVersion under name, any order.
	ListVersions(ctx context.Context, name string) ([]*registry.PackageVersion, error)
	// GetVersion reads one PackageVersion. ok is false if absent.
	GetVersion(ctx context.Context, name, version string) (v *registry.PackageVersion, ok bool, err error)
	// ListAssets returns the assets for one PackageVersion.
	ListAssets(ctx context.Context, name, version string) ([]*registry.PackageVersionAsset, error)

	// NameConflict reports whether key collides with an existing active
	// package name or a moderated (tombstoned) one. Both return values
	// are nil/empty when there is no conflict. Used by NameTracker as
	// the authoritative fallback when its in-memory index is stale and
	// the candidate is close to a reject threshold.
	NameConflict(ctx context.Context, key string) (activeName string, moderated *registry.ModeratedName, err error)

	// DeletedVersions returns the set of canonical version strings ever
	// hard-deleted for name.
	DeletedVersions(ctx context.Context, name string) (map[string]struct{}, error)

	// AllActiveNames returns every current, non-tombstoned package name
	// and its similarity key, for the NameTracker's periodic background
	// scan.
	AllActiveNames(ctx context.Context) (map[string]string, error)
	// AllModeratedKeys returns every moderated-name similarity key.
	AllModeratedKeys(ctx context.Context) (map[string]struct{}, error)

	// PendingOutbox returns up to limit undelivered OutboxMessages whose
	// NextAttemptAt has passed, oldest first.
	PendingOutbox(ctx context.Context, now time.Time, limit int) ([]*registry.OutboxMessage, error)
	// RecordOutboxAttempt bumps Attempts/NextAttemptAt, or sets
	// DeliveredAt when delivered is true.
	RecordOutboxAttempt(ctx context.Context, id string, delivered bool, nextAttemptAt time.Time) error

	// WithinPackageTx runs fn inside a transaction scoped to the
	// single-package entity group named by pkgName: the package row (if
	// any), its versions, and their assets. fn must be side-effect-free
	// outside the Tx it's given, since WithinPackageTx may be retried by
	// the caller (see internal/retry) on a serialization conflict. Pass
	// a not-yet-existing pkgName to create the package for the first
	// time inside the transaction.
	WithinPackageTx(ctx context.Context, pkgName string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write surface available inside WithinPackageTx. Every
// method operates on the single package entity group the transaction
// was opened for.
type Tx interface {
	// GetPackage reads the Package row with a transaction-scoped lock
	// strong enough to serialize concurrent publishers.
	GetPackage(ctx context.Context) (pkg *registry.Package, ok bool, err error)
	GetVersion(ctx context.Context, version string) (v *registry.PackageVersion, ok bool, err error)
	// ListVersions returns every PackageVersion already committed for
	// this entity group, transaction-scoped. Callers that need a
	// snapshot of sibling versions while deciding the new one (e.g. to
	// recompute the latest-version pointer) must use this instead of
	// Store.ListVersions: the latter is a separate, non-transactional
	// read and calling it from inside WithinPackageTx both breaks
	// isolation and can deadlock a single-lock in-process store.
	ListVersions(ctx context.Context) ([]*registry.PackageVersion, error)
	CountVersions(ctx context.Context) (int, error)
	DeletedVersions(ctx context.Context) (map[string]struct{}, error)

	// PutPackage inserts or fully overwrites the Package row.
	PutPackage(ctx context.Context, pkg *registry.Package) error
	// PutVersion inserts a new PackageVersion (and its assets in the
	// same statement set). Callers never update an existing version row
	// via this method; see SetRetracted/HardDeleteVersion for the only two
	// legal post-publish mutations.
	PutVersion(ctx context.Context, v *registry.PackageVersion, assets []*registry.PackageVersionAsset) error
	// SetRetracted toggles IsRetracted/RetractedAt on an existing version.
	SetRetracted(ctx context.Context, version string, retracted bool, at time.Time) error
	// HardDeleteVersion removes a version's row/assets and appends it to
	// the package's deleted-version set.
	HardDeleteVersion(ctx context.Context, version string) error
	// TombstonePackage deletes the Package (and its versions/assets) and
	// inserts a ModeratedName row in its place, in the same transaction.
	TombstonePackage(ctx context.Context, reason string) error

	InsertAuditLog(ctx context.Context, rec *registry.AuditLogRecord) error
	InsertOutboxMessage(ctx context.Context, msg *registry.OutboxMessage) error

	// ReserveName checks, as part of package creation, that no active
	// package other than name holds similarityKey, and fails with
	// registry.ErrPackageRejected (Reason registry.ReasonSimilarToActive)
	// if one does. It writes nothing; the name becomes active when the
	// caller's PutPackage commits.
	ReserveName(ctx context.Context, name, similarityKey string) error
}
