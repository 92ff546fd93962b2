package registrycore

import (
	"context"
	"fmt"
	"strings"

	"github.com/pubregistry/registry"
)

// authorizeUpload implements the per-agent-kind authorization for
// publishing newVersion under an existing pkg. Brand-new packages are
// authorized separately in upload.go (only an interactive user may
// create one).
func (r *Registry) authorizeUpload(ctx context.Context, pkg *registry.Package, agent registry.Agent, newVersion string) error {
	const op = "Registry.authorizeUpload"
	switch a := agent.(type) {
	case registry.AuthenticatedUser:
		if pkg.HasUploader(a.UserID) {
			return nil
		}
		if pkg.PublisherID != "" {
			ok, err := r.Publishers.IsAdmin(ctx, a.UserID, pkg.PublisherID)
			if err != nil {
				return fmt.Errorf("%s: checking publisher admin: %w", op, err)
			}
			if ok {
				return nil
			}
		}
		return &registry.Error{
			Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonUserCannotUploadNewVersion,
			Message: fmt.Sprintf("%s is not authorized to publish new versions of %s", a.DisplayID(), pkg.Name),
		}
	case registry.AuthenticatedGithubAction:
		gh := pkg.AutomatedPublishing.GitHub
		if !gh.Enabled {
			return githubIssue(fmt.Sprintf("automated publishing via GitHub Actions is not enabled for %s", pkg.Name))
		}
		if gh.Repository != a.Repository {
			return githubIssue("token repository does not match the configured repository")
		}
		if a.EventName != "push" || a.RefType != "tag" {
			return githubIssue("token must be minted from a tag push")
		}
		wantRef := "refs/tags/" + strings.ReplaceAll(gh.TagPattern, "{{version}}", newVersion)
		if a.Ref != wantRef {
			return githubIssue(fmt.Sprintf("token ref %q does not match expected %q", a.Ref, wantRef))
		}
		if gh.RequireEnvironment && a.Environment != gh.Environment {
			return githubIssue("token environment does not match the configured environment")
		}
		return nil
	case registry.AuthenticatedGcpServiceAccount:
		gcp := pkg.AutomatedPublishing.GCP
		if !gcp.Enabled || gcp.ServiceAccountEmail != a.Email {
			return &registry.Error{
				Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonServiceAccountIssue,
				Message: fmt.Sprintf("service account publishing is not configured for %s", pkg.Name),
			}
		}
		return nil
	default:
		return &registry.Error{Op: op, Kind: registry.ErrAuthorization, Message: "unrecognized agent kind"}
	}
}

func githubIssue(msg string) error {
	return &registry.Error{
		Op: "Registry.authorizeUpload", Kind: registry.ErrAuthorization, Reason: registry.ReasonGithubActionIssue,
		Message: msg,
	}
}

// authorizeAdminister gates the package-options, version-retraction,
// publisher-transfer, and automated-publishing-config operations: a site
// admin, a current uploader, or a publisher admin.
func (r *Registry) authorizeAdminister(ctx context.Context, pkg *registry.Package, agent registry.Agent) error {
	const op = "Registry.authorizeAdminister"
	u, ok := agent.(registry.AuthenticatedUser)
	if !ok {
		return &registry.Error{
			Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonNotAdminForPackage,
			Message: "automated agents may not administer packages",
		}
	}
	if u.SiteAdmin || pkg.HasUploader(u.UserID) {
		return nil
	}
	if pkg.PublisherID != "" {
		ok, err := r.Publishers.IsAdmin(ctx, u.UserID, pkg.PublisherID)
		if err != nil {
			return fmt.Errorf("%s: checking publisher admin: %w", op, err)
		}
		if ok {
			return nil
		}
	}
	return &registry.Error{
		Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonNotAdminForPackage,
		Message: fmt.Sprintf("%s is not an administrator of %s", u.DisplayID(), pkg.Name),
	}
}

// authorizeManageUploaders gates AddUploader/RemoveUploader: never
// an automated agent, never a publisher-owned package, and
// only a current uploader or site admin.
func (r *Registry) authorizeManageUploaders(pkg *registry.Package, agent registry.Agent) error {
	const op = "Registry.authorizeManageUploaders"
	u, ok := agent.(registry.AuthenticatedUser)
	if !ok {
		return &registry.Error{
			Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonUserCannotChangeUploaders,
			Message: "automated agents may not manage uploaders",
		}
	}
	if pkg.PublisherID != "" {
		return &registry.Error{
			Op: op, Kind: registry.ErrOperationForbidden, Reason: registry.ReasonPublisherOwnedNoUploader,
			Message: fmt.Sprintf("%s is owned by a publisher; its uploader list is not managed directly", pkg.Name),
		}
	}
	if u.SiteAdmin || pkg.HasUploader(u.UserID) {
		return nil
	}
	return &registry.Error{
		Op: op, Kind: registry.ErrAuthorization, Reason: registry.ReasonUserCannotChangeUploaders,
		Message: fmt.Sprintf("%s is not an uploader of %s", u.DisplayID(), pkg.Name),
	}
}

// authorizeSiteAdmin gates the destructive admin-only operations
// (hard-delete version, tombstone package): these are reserved to the
// configured site-admin list, never a per-package uploader or publisher
// admin.
func authorizeSiteAdmin(agent registry.Agent) error {
	u, ok := agent.(registry.AuthenticatedUser)
	if !ok || !u.SiteAdmin {
		return &registry.Error{
			Op: "Registry.authorizeSiteAdmin", Kind: registry.ErrAuthorization, Reason: registry.ReasonNotAdminForPackage,
			Message: "this operation requires a site administrator",
		}
	}
	return nil
}
