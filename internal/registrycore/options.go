package registrycore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/audit"
	"github.com/pubregistry/registry/internal/cachelayer"
	"github.com/pubregistry/registry/internal/metadatastore"
	"github.com/pubregistry/registry/internal/outbox"
	"github.com/pubregistry/registry/internal/retry"
)

// PackageOptions is the mutable subset of Package that updateOptions may
// change.
type PackageOptions struct {
	IsDiscontinued *bool
	ReplacedBy     *string
	IsUnlisted     *bool
}

// UpdateOptions updates package-level listing flags: a package admin
// (uploader, publisher admin, or site admin) may flip the discontinued/
// unlisted flags and set a replacement package. replacedBy is only
// meaningful once isDiscontinued is set true by this call or already.
func (r *Registry) UpdateOptions(ctx context.Context, agent registry.Agent, pkgName string, opts PackageOptions) error {
	const op = "Registry.UpdateOptions"
	if agent == nil {
		return &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
	}

	// The replacement package lives in a different entity group, so its
	// existence is checked outside the transaction below.
	if opts.ReplacedBy != nil && *opts.ReplacedBy != "" {
		if _, exists, err := r.Store.GetPackage(ctx, *opts.ReplacedBy); err != nil {
			return fmt.Errorf("%s: checking replacement package: %w", op, err)
		} else if !exists {
			return &registry.Error{Op: op, Kind: registry.ErrInvalidInput, Message: fmt.Sprintf("replacement package %q does not exist", *opts.ReplacedBy)}
		}
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
			if err := r.authorizeAdminister(ctx, pkg, agent); err != nil {
				return err
			}

			discontinued := pkg.IsDiscontinued
			if opts.IsDiscontinued != nil {
				discontinued = *opts.IsDiscontinued
			}
			replacedBy := pkg.ReplacedBy
			if opts.ReplacedBy != nil {
				replacedBy = *opts.ReplacedBy
			}
			if replacedBy != "" && !discontinued {
				return &registry.Error{Op: op, Kind: registry.ErrInvalidInput, Message: "replacedBy may only be set on a discontinued package"}
			}

			pkg.IsDiscontinued = discontinued
			pkg.ReplacedBy = replacedBy
			if opts.IsUnlisted != nil {
				pkg.IsUnlisted = *opts.IsUnlisted
			}
			pkg.Updated = time.Now().UTC()

			if err := tx.PutPackage(ctx, pkg); err != nil {
				return err
			}
			rec := audit.New(registry.AuditOptionsChanged, agent, fmt.Sprintf("updated options for %s", pkgName)).Package(pkgName)
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

// UpdateVersionOptions implements the retraction state machine: a
// version may be retracted within RetractionWindow of publish, and
// un-retracted within UnretractionWindow of publish. Either transition
// recomputes latestVersionKey/latestPrereleaseVersionKey.
func (r *Registry) UpdateVersionOptions(ctx context.Context, agent registry.Agent, pkgName, version string, retracted bool, defaultSDKVersion string) error {
	const op = "Registry.UpdateVersionOptions"
	if agent == nil {
		return &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
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
			if err := r.authorizeAdminister(ctx, pkg, agent); err != nil {
				return err
			}
			v, ok, err := tx.GetVersion(ctx, version)
			if err != nil {
				return err
			}
			if !ok {
				return &registry.Error{Op: op, Kind: registry.ErrNotFound, Message: fmt.Sprintf("%s %s not found", pkgName, version)}
			}
			if v.IsRetracted == retracted {
				return nil
			}

			now := time.Now().UTC()
			age := now.Sub(v.Created)
			if retracted {
				if age > r.cfg.RetractionWindow {
					return &registry.Error{
						Op: op, Kind: registry.ErrInvalidInput,
						Message: fmt.Sprintf("%s %s was published more than %s ago and can no longer be retracted", pkgName, version, r.cfg.RetractionWindow),
					}
				}
			} else if age > r.cfg.UnretractionWindow {
				return &registry.Error{
					Op: op, Kind: registry.ErrInvalidInput,
					Message: fmt.Sprintf("%s %s was published more than %s ago and can no longer be un-retracted", pkgName, version, r.cfg.UnretractionWindow),
				}
			}

			if err := tx.SetRetracted(ctx, version, retracted, now); err != nil {
				return err
			}

			allVersions, err := tx.ListVersions(ctx)
			if err != nil {
				return err
			}
			for _, av := range allVersions {
				if av.Version == version {
					av.IsRetracted = retracted
				}
			}
			latest, latestPrerelease, err := selectLatest(allVersions, defaultSDKVersion)
			if err != nil {
				return err
			}
			pkg.LatestVersionKey = latest
			pkg.LatestPrereleaseVersionKey = latestPrerelease
			pkg.Updated = now
			if err := tx.PutPackage(ctx, pkg); err != nil {
				return err
			}

			kind := registry.AuditVersionUnretracted
			verb := "un-retracted"
			if retracted {
				kind = registry.AuditVersionRetracted
				verb = "retracted"
			}
			rec := audit.New(kind, agent, fmt.Sprintf("%s %s %s", verb, pkgName, version)).PackageVersion(pkgName, version)
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

// SetPublisher transfers a package to a publisher's ownership. The
// caller must administer the package and administer the target
// publisher; transfer clears uploaders and
// notifies the union of the old and new admin sets. Transferring to the
// package's current publisher is a no-op success. There is currently no
// way to remove a publisher once set.
func (r *Registry) SetPublisher(ctx context.Context, agent registry.Agent, pkgName, targetPublisherID string) error {
	const op = "Registry.SetPublisher"
	if agent == nil {
		return &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
	}
	if targetPublisherID == "" {
		return &registry.Error{Op: op, Kind: registry.ErrNotAcceptable, Message: "removing a publisher is not supported"}
	}
	u, ok := agent.(registry.AuthenticatedUser)
	if !ok {
		return &registry.Error{Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonNotAdminForPackage, Message: "automated agents may not transfer packages"}
	}
	targetAdmin, err := r.Publishers.IsAdmin(ctx, u.UserID, targetPublisherID)
	if err != nil {
		return fmt.Errorf("%s: checking target publisher admin: %w", op, err)
	}
	if !targetAdmin {
		return &registry.Error{
			Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonNotAdminForPackage,
			Message: fmt.Sprintf("%s is not an administrator of publisher %s", u.DisplayID(), targetPublisherID),
		}
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
			if err := r.authorizeAdminister(ctx, pkg, agent); err != nil {
				return err
			}
			if pkg.PublisherID == targetPublisherID {
				return nil
			}

			oldRecipients, err := r.notificationRecipients(ctx, pkg)
			if err != nil {
				return err
			}

			pkg.PublisherID = targetPublisherID
			pkg.Uploaders = nil
			pkg.Updated = time.Now().UTC()
			if err := tx.PutPackage(ctx, pkg); err != nil {
				return err
			}

			rec := audit.New(registry.AuditPublisherChanged, agent, fmt.Sprintf("transferred %s to publisher %s", pkgName, targetPublisherID)).
				Package(pkgName).Publisher(targetPublisherID).User(u.UserID)
			if err := tx.InsertAuditLog(ctx, rec.Build()); err != nil {
				return err
			}

			newRecipients, err := r.notificationRecipients(ctx, pkg)
			if err != nil {
				return err
			}
			recipients := dedupe(append(oldRecipients, newRecipients...))
			if len(recipients) == 0 {
				return nil
			}
			now := time.Now().UTC()
			msg := &registry.OutboxMessage{
				Kind:          registry.OutboxEmail,
				Payload:       outboxTransferPayload(recipients, pkgName, targetPublisherID),
				NextAttemptAt: now,
				ExpiresAt:     now.Add(7 * 24 * time.Hour),
			}
			return tx.InsertOutboxMessage(ctx, msg)
		})
	})
}

// UpdateAutomatedPublishing validates and stores the
// automated-publishing config: tagPattern must embed exactly one
// "{{version}}" placeholder, and a configured GCP service account must
// look like one (ends in ".gserviceaccount.com").
func (r *Registry) UpdateAutomatedPublishing(ctx context.Context, agent registry.Agent, pkgName string, cfg registry.AutomatedPublishing) error {
	const op = "Registry.UpdateAutomatedPublishing"
	if agent == nil {
		return &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
	}
	if cfg.GitHub.Enabled {
		if strings.Count(cfg.GitHub.TagPattern, "{{version}}") != 1 {
			return &registry.Error{Op: op, Kind: registry.ErrInvalidInput, Message: `tagPattern must contain exactly one "{{version}}" placeholder`}
		}
		if cfg.GitHub.Repository == "" || !strings.Contains(cfg.GitHub.Repository, "/") {
			return &registry.Error{Op: op, Kind: registry.ErrInvalidInput, Message: `repository must look like "<owner>/<repo>"`}
		}
	}
	if cfg.GCP.Enabled && !strings.HasSuffix(cfg.GCP.ServiceAccountEmail, ".gserviceaccount.com") {
		return &registry.Error{Op: op, Kind: registry.ErrInvalidInput, Message: "serviceAccountEmail must be a GCP service account"}
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
			if err := r.authorizeAdminister(ctx, pkg, agent); err != nil {
				return err
			}
			pkg.AutomatedPublishing = cfg
			pkg.Updated = time.Now().UTC()
			if err := tx.PutPackage(ctx, pkg); err != nil {
				return err
			}
			rec := audit.New(registry.AuditAutomatedPublishingChanged, agent, fmt.Sprintf("updated automated publishing for %s", pkgName)).Package(pkgName)
			if u, ok := agent.(registry.AuthenticatedUser); ok {
				rec = rec.User(u.UserID)
			}
			return tx.InsertAuditLog(ctx, rec.Build())
		})
	})
}

func outboxTransferPayload(recipients []string, pkgName, targetPublisherID string) []byte {
	sort.Strings(recipients)
	subject := fmt.Sprintf("%s transferred to publisher %s", pkgName, targetPublisherID)
	body := fmt.Sprintf("Package %s is now owned by publisher %s.", pkgName, targetPublisherID)
	return outbox.BuildEmailPayload(recipients, subject, body)
}
