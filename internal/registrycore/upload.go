package registrycore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quay/zlog"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/archive"
	"github.com/pubregistry/registry/internal/archivestore"
	"github.com/pubregistry/registry/internal/audit"
	"github.com/pubregistry/registry/internal/cachelayer"
	"github.com/pubregistry/registry/internal/jobtrigger"
	"github.com/pubregistry/registry/internal/metadatastore"
	"github.com/pubregistry/registry/internal/outbox"
	"github.com/pubregistry/registry/internal/retry"
	"github.com/pubregistry/registry/internal/signer"
)

// StartUpload issues a short-lived signed POST
// policy targeting the incoming bucket.
func (r *Registry) StartUpload(ctx context.Context, agent registry.Agent, redirectURL string) (signer.Policy, error) {
	const op = "Registry.StartUpload"
	if agent == nil {
		return signer.Policy{}, &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
	}
	if !r.cfg.UploadsEnabled {
		return signer.Policy{}, &registry.Error{
			Op: op, Kind: registry.ErrOperationForbidden, Reason: registry.ReasonUploadRestricted,
			Message: "uploads are currently disabled",
		}
	}
	return r.Signer.Issue(redirectURL)
}

// PublishResult is the outcome of a successful publish.
type PublishResult struct {
	Package string
	Version string
	Message string
}

// PublishUploadedBlob reads, parses, validates,
// authorizes, and transactionally commits a staged upload as a new
// PackageVersion, then performs the post-commit fan-out on a
// best-effort basis.
func (r *Registry) PublishUploadedBlob(ctx context.Context, agent registry.Agent, uploadID, defaultSDKVersion string) (*PublishResult, error) {
	const op = "Registry.PublishUploadedBlob"
	if agent == nil {
		return nil, &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
	}

	blob, _, err := r.readIncomingBlob(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	summary, err := archive.Parse(blob.File, r.cfg.MaxArchiveSize)
	if err != nil {
		return nil, &registry.Error{Op: op, Kind: registry.ErrPackageRejected, Message: "the uploaded archive could not be read", Inner: err}
	}
	if len(summary.Issues) > 0 {
		return nil, &registry.Error{Op: op, Kind: registry.ErrPackageRejected, Message: summary.Issues[0]}
	}

	pkgName := summary.Pubspec.Name
	version, err := registry.Canonicalize(summary.Pubspec.Version)
	if err != nil {
		return nil, err
	}

	md5sum, err := blobMD5(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: hashing upload: %w", op, err)
	}

	existingPkg, exists, err := r.Store.GetPackage(ctx, pkgName)
	if err != nil {
		return nil, fmt.Errorf("%s: reading package: %w", op, err)
	}

	if !exists {
		if _, ok := agent.(registry.AuthenticatedUser); !ok {
			return nil, &registry.Error{
				Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonUserCannotUploadNewVersion,
				Message: "only an interactive user may create a new package",
			}
		}
		if err := r.Names.CheckNewName(ctx, pkgName, false, r.cfg.VendorReservedPrefixes); err != nil {
			return nil, err
		}
	} else {
		if err := r.authorizeUpload(ctx, existingPkg, agent, version); err != nil {
			return nil, err
		}
	}

	if exists {
		// A hard-deleted version's canonical archive may still exist, so
		// this check comes before the byte comparison below; the
		// transaction re-checks it under the package lock.
		deleted, err := r.Store.DeletedVersions(ctx, pkgName)
		if err != nil {
			return nil, fmt.Errorf("%s: reading deleted versions: %w", op, err)
		}
		if _, del := deleted[version]; del {
			return nil, &registry.Error{
				Op: op, Kind: registry.ErrPackageRejected, Reason: registry.ReasonVersionDeleted,
				Message: fmt.Sprintf("%s %s was previously deleted and cannot be republished", pkgName, version),
			}
		}
	}

	archiveKey := archivestore.ArchiveKey(pkgName, version)
	canonInfo, err := r.Archives.Stat(ctx, archivestore.Canonical, archiveKey)
	if err != nil {
		return nil, fmt.Errorf("%s: statting canonical object: %w", op, err)
	}
	if canonInfo.Exists && canonInfo.MD5 != md5sum {
		return nil, &registry.Error{
			Op: op, Kind: registry.ErrPackageRejected, Reason: registry.ReasonVersionExists,
			Message: fmt.Sprintf("%s %s already exists", pkgName, version),
		}
	}

	now := time.Now().UTC()
	assets := buildAssets(pkgName, version, summary)

	var (
		prevLatest, prevLatestPrerelease       string
		latestChanged, latestPrereleaseChanged bool
	)

	err = retry.Do(ctx, r.retryPolicy(), func(ctx context.Context) error {
		return r.Store.WithinPackageTx(ctx, pkgName, func(ctx context.Context, tx metadatastore.Tx) error {
			pkg, ok, err := tx.GetPackage(ctx)
			if err != nil {
				return err
			}

			var newPkg bool
			if ok {
				if _, vExists, err := tx.GetVersion(ctx, version); err != nil {
					return err
				} else if vExists {
					return &registry.Error{
						Op: op, Kind: registry.ErrPackageRejected, Reason: registry.ReasonVersionExists,
						Message: fmt.Sprintf("%s %s already exists", pkgName, version),
					}
				}
				deleted, err := tx.DeletedVersions(ctx)
				if err != nil {
					return err
				}
				if _, del := deleted[version]; del {
					return &registry.Error{
						Op: op, Kind: registry.ErrPackageRejected, Reason: registry.ReasonVersionDeleted,
						Message: fmt.Sprintf("%s %s was previously deleted and cannot be republished", pkgName, version),
					}
				}
				if pkg.IsBlocked {
					return &registry.Error{
						Op: op, Kind: registry.ErrPackageRejected, Reason: registry.ReasonIsBlocked,
						Message: fmt.Sprintf("%s is blocked", pkgName),
					}
				}
				count, err := tx.CountVersions(ctx)
				if err != nil {
					return err
				}
				if count >= r.cfg.MaxVersionsPerPackage {
					return &registry.Error{
						Op: op, Kind: registry.ErrPackageRejected, Reason: registry.ReasonMaxVersionsReached,
						Message: fmt.Sprintf("%s has reached the maximum of %d versions", pkgName, r.cfg.MaxVersionsPerPackage),
					}
				}
			} else {
				u, ok := agent.(registry.AuthenticatedUser)
				if !ok {
					return &registry.Error{
						Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonUserCannotUploadNewVersion,
						Message: "only an interactive user may create a new package",
					}
				}
				newPkg = true
				pkg = &registry.Package{
					Name:            pkgName,
					Created:         now,
					Updated:         now,
					Uploaders:       []string{u.UserID},
					DeletedVersions: map[string]struct{}{},
				}
				if err := tx.ReserveName(ctx, pkgName, registry.SimilarityKey(pkgName)); err != nil {
					return err
				}
			}

			existingVersions, err := tx.ListVersions(ctx)
			if err != nil {
				return err
			}
			newVersion := &registry.PackageVersion{
				PackageName:          pkgName,
				Version:              version,
				Pubspec:              summary.Pubspec,
				Libraries:            summary.Libraries,
				Created:              now,
				UploaderAgentID:      agent.AgentID(),
				PublisherIDAtPublish: pkg.PublisherID,
				SHA256:               summary.SHA256,
			}

			prevLatest, prevLatestPrerelease = pkg.LatestVersionKey, pkg.LatestPrereleaseVersionKey
			allVersions := append(append([]*registry.PackageVersion(nil), existingVersions...), newVersion)
			latest, latestPrerelease, err := selectLatest(allVersions, defaultSDKVersion)
			if err != nil {
				return err
			}
			latestChanged = latest != prevLatest
			latestPrereleaseChanged = latestPrerelease != prevLatestPrerelease

			pkg.Updated = now
			pkg.LatestVersionKey = latest
			pkg.LatestPrereleaseVersionKey = latestPrerelease
			pkg.VersionCount++

			if err := tx.PutPackage(ctx, pkg); err != nil {
				return err
			}
			if err := tx.PutVersion(ctx, newVersion, assets); err != nil {
				return err
			}

			rec := audit.New(registry.AuditPackagePublished, agent, fmt.Sprintf("published %s %s", pkgName, version)).
				Package(pkgName).PackageVersion(pkgName, version)
			if u, ok := agent.(registry.AuthenticatedUser); ok {
				rec = rec.User(u.UserID)
			}
			if err := tx.InsertAuditLog(ctx, rec.Build()); err != nil {
				return err
			}

			recipients, err := r.notificationRecipients(ctx, pkg)
			if err != nil {
				return err
			}
			if len(recipients) > 0 {
				msg := &registry.OutboxMessage{
					Kind:          registry.OutboxEmail,
					Payload:       outbox.BuildEmailPayload(recipients, "New version of "+pkgName, fmt.Sprintf("%s published %s %s.", agent.DisplayID(), pkgName, version)),
					NextAttemptAt: now,
					ExpiresAt:     now.Add(7 * 24 * time.Hour),
				}
				if err := tx.InsertOutboxMessage(ctx, msg); err != nil {
					return err
				}
			}
			for _, jm := range jobtrigger.ForPublish(pkgName, version, prevLatest, prevLatestPrerelease, latestChanged, latestPrereleaseChanged, now) {
				if err := tx.InsertOutboxMessage(ctx, jm); err != nil {
					return err
				}
			}

			if newPkg {
				r.Names.Observe(pkgName)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	r.finishPublishSideEffects(ctx, uploadID, pkgName, version, canonInfo.Exists)

	return &PublishResult{
		Package: pkgName,
		Version: version,
		Message: fmt.Sprintf("Successfully uploaded new version of %s %s.", pkgName, version),
	}, nil
}

// finishPublishSideEffects promotes the archive outside the committed
// transaction: copy the incoming blob to the canonical and public
// buckets (unless the canonical copy already matched byte-for-byte),
// delete the incoming blob, and purge the cache entries for this
// package. Every failure here is logged, not returned — the version is
// already committed.
func (r *Registry) finishPublishSideEffects(ctx context.Context, uploadID, pkgName, version string, canonicalAlreadyMatched bool) {
	incomingKey := archivestore.IncomingKey(uploadID)
	archiveKey := archivestore.ArchiveKey(pkgName, version)

	if !canonicalAlreadyMatched {
		if err := r.Archives.Copy(ctx, archivestore.Incoming, incomingKey, archivestore.Canonical, archiveKey); err != nil {
			logPublishSideEffectError(ctx, "copying to canonical bucket", err)
		}
	}
	if err := r.Archives.Copy(ctx, archivestore.Canonical, archiveKey, archivestore.Public, archiveKey); err != nil {
		logPublishSideEffectError(ctx, "copying to public bucket", err)
	}
	if err := r.Archives.Delete(ctx, archivestore.Incoming, incomingKey); err != nil {
		logPublishSideEffectError(ctx, "deleting incoming object", err)
	}
	if err := r.Cache.Purge(ctx, cachelayer.PackagePrefix(pkgName)); err != nil {
		logPublishSideEffectError(ctx, "purging cache", err)
	}
}

// notificationRecipients resolves the union of a package's current
// uploaders (or its publisher's admins) to display emails, for the
// publish-notice outbox message.
func (r *Registry) notificationRecipients(ctx context.Context, pkg *registry.Package) ([]string, error) {
	var addrs []string
	if pkg.PublisherID != "" {
		emails, err := r.Publishers.AdminEmails(ctx, pkg.PublisherID)
		if err != nil {
			return nil, fmt.Errorf("resolving publisher admins: %w", err)
		}
		addrs = append(addrs, emails...)
	}
	for _, uid := range pkg.Uploaders {
		email, err := r.Accounts.Email(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("resolving uploader email: %w", err)
		}
		if email != "" {
			addrs = append(addrs, email)
		}
	}
	return dedupe(addrs), nil
}

func dedupe(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := addrs[:0]
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// buildAssets converts an archive.Summary's extracted assets into
// persistable PackageVersionAsset rows.
func buildAssets(pkgName, version string, s *archive.Summary) []*registry.PackageVersionAsset {
	assets := []*registry.PackageVersionAsset{{
		PackageName: pkgName, Version: version, Kind: registry.AssetPubspec,
		Path: "pubspec.yaml", TextContent: s.PubspecText,
	}}
	add := func(kind registry.AssetKind, a *archive.Asset) {
		if a == nil {
			return
		}
		assets = append(assets, &registry.PackageVersionAsset{
			PackageName: pkgName, Version: version, Kind: kind,
			Path: a.Path, TextContent: a.Content, Truncated: a.Truncated,
		})
	}
	add(registry.AssetReadme, s.Readme)
	add(registry.AssetChangelog, s.Changelog)
	add(registry.AssetExample, s.Example)
	add(registry.AssetLicense, s.License)
	return assets
}

func logPublishSideEffectError(ctx context.Context, what string, err error) {
	zlog.Error(ctx).Err(err).Msg("registrycore: post-commit " + what + " failed")
}
