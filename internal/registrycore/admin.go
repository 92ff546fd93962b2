package registrycore

import (
	"context"
	"fmt"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/audit"
	"github.com/pubregistry/registry/internal/cachelayer"
	"github.com/pubregistry/registry/internal/metadatastore"
	"github.com/pubregistry/registry/internal/retry"
)

// HardDeleteVersion is a site-admin-only operation: it removes a
// PackageVersion's row and assets and appends its string to
// Package.DeletedVersions so it can never be republished. It is exposed
// only through cmd/pubregistryctl, never the public HTTP API.
func (r *Registry) HardDeleteVersion(ctx context.Context, agent registry.Agent, pkgName, version string) error {
	const op = "Registry.HardDeleteVersion"
	if agent == nil {
		return &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
	}
	if err := authorizeSiteAdmin(agent); err != nil {
		return err
	}
	version, err := registry.Canonicalize(version)
	if err != nil {
		return err
	}

	return retry.Do(ctx, r.retryPolicy(), func(ctx context.Context) error {
		return r.Store.WithinPackageTx(ctx, pkgName, func(ctx context.Context, tx metadatastore.Tx) error {
			pkg, ok, err := tx.GetPackage(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return &registry.Error{Op: op, Kind: registry.ErrNotFound, Message: fmt.Sprintf("package %q not found", pkgName)}
			}
			if _, ok, err := tx.GetVersion(ctx, version); err != nil {
				return err
			} else if !ok {
				return &registry.Error{Op: op, Kind: registry.ErrNotFound, Message: fmt.Sprintf("%s %s not found", pkgName, version)}
			}
			if err := tx.HardDeleteVersion(ctx, version); err != nil {
				return err
			}

			allVersions, err := tx.ListVersions(ctx)
			if err != nil {
				return err
			}
			// No SDK version is available on the admin path; the empty
			// string makes selectLatest fall back to plain newest-stable.
			latest, latestPrerelease, err := selectLatest(allVersions, "")
			if err != nil {
				return err
			}
			pkg.LatestVersionKey = latest
			pkg.LatestPrereleaseVersionKey = latestPrerelease
			pkg.VersionCount = len(allVersions)
			if err := tx.PutPackage(ctx, pkg); err != nil {
				return err
			}

			rec := audit.New(registry.AuditVersionHardDeleted, agent, fmt.Sprintf("hard-deleted %s %s", pkgName, version)).
				PackageVersion(pkgName, version)
			if u, ok := agent.(registry.AuthenticatedUser); ok {
				rec = rec.User(u.UserID)
			}
			if err := tx.InsertAuditLog(ctx, rec.Build()); err != nil {
				return err
			}
			return r.Cache.Purge(ctx, cachelayer.PackagePrefix(pkgName))
		})
	})
}

// TombstonePackage is a site-admin-only operation that deletes pkgName
// entirely and moves its name (and similarity key) to the moderated-name
// set, blocking re-creation and driving the similarity-rejection check.
func (r *Registry) TombstonePackage(ctx context.Context, agent registry.Agent, pkgName, reason string) error {
	const op = "Registry.TombstonePackage"
	if agent == nil {
		return &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
	}
	if err := authorizeSiteAdmin(agent); err != nil {
		return err
	}

	err := retry.Do(ctx, r.retryPolicy(), func(ctx context.Context) error {
		return r.Store.WithinPackageTx(ctx, pkgName, func(ctx context.Context, tx metadatastore.Tx) error {
			_, ok, err := tx.GetPackage(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return &registry.Error{Op: op, Kind: registry.ErrNotFound, Message: fmt.Sprintf("package %q not found", pkgName)}
			}
			if err := tx.TombstonePackage(ctx, reason); err != nil {
				return err
			}
			rec := audit.New(registry.AuditPackageTombstoned, agent, fmt.Sprintf("tombstoned %s: %s", pkgName, reason)).Package(pkgName)
			if u, ok := agent.(registry.AuthenticatedUser); ok {
				rec = rec.User(u.UserID)
			}
			if err := tx.InsertAuditLog(ctx, rec.Build()); err != nil {
				return err
			}
			return r.Cache.Purge(ctx, cachelayer.PackagePrefix(pkgName))
		})
	})
	if err != nil {
		return err
	}
	r.Names.ObserveModerated(pkgName, reason)
	return nil
}
