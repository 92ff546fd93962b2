// Package registrycore implements the Registry component:
// the publishing state machine and package/version aggregate. It is the
// hub every other internal package feeds into — MetadataStore for
// transactional commits, ArchiveStore for blob movement, NameTracker for
// the similarity check, UploadSigner for signed POSTs, CacheLayer for
// read-through caching, AuditLog/Outbox/JobTrigger for the post-commit
// fan-out — composing those collaborators rather than owning any one
// concern itself.
package registrycore

import (
	"time"

	"github.com/pubregistry/registry/internal/archivestore"
	"github.com/pubregistry/registry/internal/cachelayer"
	"github.com/pubregistry/registry/internal/metadatastore"
	"github.com/pubregistry/registry/internal/nametracker"
	"github.com/pubregistry/registry/internal/retry"
	"github.com/pubregistry/registry/internal/signer"
)

// Config holds the Registry's operational knobs.
type Config struct {
	// MaxArchiveSize bounds an uploaded archive, in bytes.
	MaxArchiveSize int64
	// MaxVersionsPerPackage caps PackageVersion rows per Package.
	MaxVersionsPerPackage int
	// RetractionWindow bounds how long after publish a version may be
	// retracted.
	RetractionWindow time.Duration
	// UnretractionWindow bounds how long after publish a retracted
	// version may be un-retracted.
	UnretractionWindow time.Duration
	// VendorReservedPrefixes lists package-name prefixes reserved to the
	// ecosystem vendor.
	VendorReservedPrefixes []string
	// UploadsEnabled gates startUpload; false mirrors the "no-uploads"
	// global switch.
	UploadsEnabled bool
	// ListingCacheTTL bounds how long a ListVersions response is served
	// from CacheLayer before a fresh MetadataStore read.
	ListingCacheTTL time.Duration
	// Retry is the MetadataStore transaction-conflict backoff.
	Retry retry.Policy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxArchiveSize:        100 << 20,
		MaxVersionsPerPackage: 1000,
		RetractionWindow:      7 * 24 * time.Hour,
		UnretractionWindow:    14 * 24 * time.Hour,
		UploadsEnabled:        true,
		ListingCacheTTL:       30 * time.Second,
		Retry:                 retry.Default,
	}
}

// Registry is the publishing core. All exported methods are safe for
// concurrent use; MetadataStore transactions provide the only ordering
// guarantee.
type Registry struct {
	cfg Config

	Store      metadatastore.Store
	Archives   archivestore.Store
	Names      *nametracker.Tracker
	Signer     *signer.Signer
	Cache      cachelayer.Cache
	Publishers PublisherDirectory
	Accounts   AccountDirectory
}

// New wires a Registry from its collaborators. Callers (cmd/pubregistryd,
// tests) construct each collaborator independently; Registry never
// constructs its own dependencies.
func New(cfg Config, store metadatastore.Store, archives archivestore.Store, names *nametracker.Tracker, sign *signer.Signer, cache cachelayer.Cache, publishers PublisherDirectory, accounts AccountDirectory) *Registry {
	return &Registry{
		cfg:        cfg,
		Store:      store,
		Archives:   archives,
		Names:      names,
		Signer:     sign,
		Cache:      cache,
		Publishers: publishers,
		Accounts:   accounts,
	}
}

func (r *Registry) retryPolicy() retry.Policy {
	if r.cfg.Retry.Attempts == 0 {
		return retry.Default
	}
	return r.cfg.Retry
}
