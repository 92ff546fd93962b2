package registrycore

import (
	"context"
	"fmt"
	"time"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/audit"
	"github.com/pubregistry/registry/internal/metadatastore"
	"github.com/pubregistry/registry/internal/outbox"
	"github.com/pubregistry/registry/internal/retry"
)

// AddUploader implements the `POST /api/packages/<name>/uploaders`
// endpoint: invite email as an uploader of an
// uploader-managed package (never a publisher-owned one).
func (r *Registry) AddUploader(ctx context.Context, agent registry.Agent, pkgName, email string) error {
	const op = "Registry.AddUploader"
	if agent == nil {
		return &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
	}
	userID, ok, err := r.Accounts.ResolveUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: resolving account: %w", op, err)
	}
	if !ok {
		return &registry.Error{Op: op, Kind: registry.ErrInvalidInput, Message: fmt.Sprintf("no account is registered for %q", email)}
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
			if err := r.authorizeManageUploaders(pkg, agent); err != nil {
				return err
			}
			if pkg.HasUploader(userID) {
				return &registry.Error{
					Op: op, Kind: registry.ErrAlreadyExists, Reason: registry.ReasonUploaderAlreadyExists,
					Message: fmt.Sprintf("%s is already an uploader of %s", email, pkgName),
				}
			}
			pkg.Uploaders = append(pkg.Uploaders, userID)
			pkg.Updated = time.Now().UTC()
			if err := tx.PutPackage(ctx, pkg); err != nil {
				return err
			}
			u := agent.(registry.AuthenticatedUser)
			rec := audit.New(registry.AuditUploaderInvited, agent, fmt.Sprintf("added %s as an uploader of %s", email, pkgName)).
				Package(pkgName).User(u.UserID).User(userID)
			if err := tx.InsertAuditLog(ctx, rec.Build()); err != nil {
				return err
			}
			now := time.Now().UTC()
			msg := &registry.OutboxMessage{
				Kind:          registry.OutboxEmail,
				Payload:       outbox.BuildEmailPayload([]string{email}, "You were added as an uploader", fmt.Sprintf("%s added you as an uploader of %s.", u.DisplayID(), pkgName)),
				NextAttemptAt: now,
				ExpiresAt:     now.Add(7 * 24 * time.Hour),
			}
			return tx.InsertOutboxMessage(ctx, msg)
		})
	})
}

// RemoveUploader implements `DELETE /api/packages/<name>/uploaders/<email>`
// endpoint: a package admin may remove any uploader but themself, and
// never the last uploader.
func (r *Registry) RemoveUploader(ctx context.Context, agent registry.Agent, pkgName, email string) error {
	const op = "Registry.RemoveUploader"
	if agent == nil {
		return &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "authentication is required"}
	}
	u, isUser := agent.(registry.AuthenticatedUser)
	userID, ok, err := r.Accounts.ResolveUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: resolving account: %w", op, err)
	}
	if !ok {
		return &registry.Error{Op: op, Kind: registry.ErrInvalidInput, Message: fmt.Sprintf("no account is registered for %q", email)}
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
			if err := r.authorizeManageUploaders(pkg, agent); err != nil {
				return err
			}
			if isUser && u.UserID == userID {
				return &registry.Error{
					Op: op, Kind: registry.ErrOperationForbidden, Reason: registry.ReasonSelfRemovalNotAllowed,
					Message: "an uploader may not remove themself",
				}
			}
			if !pkg.HasUploader(userID) {
				return &registry.Error{Op: op, Kind: registry.ErrNotFound, Message: fmt.Sprintf("%s is not an uploader of %s", email, pkgName)}
			}
			if len(pkg.Uploaders) <= 1 {
				return &registry.Error{
					Op: op, Kind: registry.ErrOperationForbidden, Reason: registry.ReasonLastUploaderRemove,
					Message: "the last uploader of a package cannot be removed",
				}
			}
			remaining := pkg.Uploaders[:0]
			for _, id := range pkg.Uploaders {
				if id != userID {
					remaining = append(remaining, id)
				}
			}
			pkg.Uploaders = remaining
			pkg.Updated = time.Now().UTC()
			if err := tx.PutPackage(ctx, pkg); err != nil {
				return err
			}
			rec := audit.New(registry.AuditUploaderRemoved, agent, fmt.Sprintf("removed %s as an uploader of %s", email, pkgName)).
				Package(pkgName).User(userID)
			if isUser {
				rec = rec.User(u.UserID)
			}
			return tx.InsertAuditLog(ctx, rec.Build())
		})
	})
}
