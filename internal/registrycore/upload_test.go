package registrycore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/regtest"
)

func TestPublishNewPackageRequiresInteractiveUser(t *testing.T) {
	ctx := t.Context()
	reg, _ := newTestRegistry()
	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("new_pkg", "1.0.0"))

	_, err := reg.PublishUploadedBlob(ctx, registry.AuthenticatedGcpServiceAccount{Email: "svc@p.gserviceaccount.com"}, "up1", "3.0.0")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ErrAuthorization, rerr.Kind)
}

func TestPublishNewPackageCommitsInvariantI1(t *testing.T) {
	ctx := t.Context()
	reg, store := newTestRegistry()
	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("new_pkg", "1.0.0"))

	res, err := reg.PublishUploadedBlob(ctx, registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}, "up1", "3.0.0")
	require.NoError(t, err)
	require.Equal(t, "new_pkg", res.Package)
	require.Equal(t, "1.0.0", res.Version)

	pkg, ok, err := store.GetPackage(ctx, "new_pkg")
	require.NoError(t, err)
	require.True(t, ok)
	// Uploaders XOR publisherId.
	require.Equal(t, []string{"u1"}, pkg.Uploaders)
	require.Empty(t, pkg.PublisherID)
	require.Equal(t, "1.0.0", pkg.LatestVersionKey)
	require.Equal(t, 1, pkg.VersionCount)

	log := store.AuditLog()
	require.Len(t, log, 1)
	require.Equal(t, registry.AuditPackagePublished, log[0].Kind)
}

// TestPublishSameVersionTwiceRejected exercises the idempotent
// re-publish contract: a second PublishUploadedBlob call for an identical
// (package, version) the store already committed is rejected as a
// duplicate rather than silently overwriting the original row.
func TestPublishSameVersionTwiceRejected(t *testing.T) {
	ctx := t.Context()
	reg, _ := newTestRegistry()
	agent := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}

	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("new_pkg", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, agent, "up1", "3.0.0")
	require.NoError(t, err)

	stageUpload(t, reg, "up2", regtest.BasicPackageFiles("new_pkg", "1.0.0"))
	_, err = reg.PublishUploadedBlob(ctx, agent, "up2", "3.0.0")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ErrPackageRejected, rerr.Kind)
	require.Equal(t, registry.ReasonVersionExists, rerr.Reason)
}

func TestPublishRejectsNonUploader(t *testing.T) {
	ctx := t.Context()
	reg, _ := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("new_pkg", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	stranger := registry.AuthenticatedUser{UserID: "u2", Email: "u2@example.com"}
	stageUpload(t, reg, "up2", regtest.BasicPackageFiles("new_pkg", "1.1.0"))
	_, err = reg.PublishUploadedBlob(ctx, stranger, "up2", "3.0.0")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ErrAuthorization, rerr.Kind)
	require.Equal(t, registry.ReasonUserCannotUploadNewVersion, rerr.Reason)
}

// TestPublishGithubActionAuthorized: a GitHub Actions token
// minted from the configured repository/tag pattern may publish once
// automated publishing is enabled for the package, without ever being an
// uploader.
func TestPublishGithubActionAuthorized(t *testing.T) {
	ctx := t.Context()
	reg, store := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("ci_pkg", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	err = reg.UpdateAutomatedPublishing(ctx, owner, "ci_pkg", registry.AutomatedPublishing{
		GitHub: registry.GitHubPublishing{
			Enabled:    true,
			Repository: "acme/ci_pkg",
			TagPattern: "v{{version}}",
		},
	})
	require.NoError(t, err)

	action := registry.AuthenticatedGithubAction{
		Repository: "acme/ci_pkg",
		EventName:  "push",
		RefType:    "tag",
		Ref:        "refs/tags/v1.1.0",
	}
	stageUpload(t, reg, "up2", regtest.BasicPackageFiles("ci_pkg", "1.1.0"))
	res, err := reg.PublishUploadedBlob(ctx, action, "up2", "3.0.0")
	require.NoError(t, err)
	require.Equal(t, "1.1.0", res.Version)

	v, ok, err := store.GetVersion(ctx, "ci_pkg", "1.1.0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "github:acme/ci_pkg", v.UploaderAgentID)
}

func TestPublishGithubActionWrongRefRejected(t *testing.T) {
	ctx := t.Context()
	reg, _ := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("ci_pkg", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	require.NoError(t, reg.UpdateAutomatedPublishing(ctx, owner, "ci_pkg", registry.AutomatedPublishing{
		GitHub: registry.GitHubPublishing{Enabled: true, Repository: "acme/ci_pkg", TagPattern: "v{{version}}"},
	}))

	action := registry.AuthenticatedGithubAction{
		Repository: "acme/ci_pkg", EventName: "push", RefType: "tag", Ref: "refs/tags/v9.9.9",
	}
	stageUpload(t, reg, "up2", regtest.BasicPackageFiles("ci_pkg", "1.1.0"))
	_, err = reg.PublishUploadedBlob(ctx, action, "up2", "3.0.0")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ReasonGithubActionIssue, rerr.Reason)
}

func TestPublishRejectsSimilarName(t *testing.T) {
	ctx := t.Context()
	reg, _ := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("my_pkg", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	stageUpload(t, reg, "up2", regtest.BasicPackageFiles("mypkg", "1.0.0"))
	_, err = reg.PublishUploadedBlob(ctx, owner, "up2", "3.0.0")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ErrPackageRejected, rerr.Kind)
	require.Equal(t, registry.ReasonSimilarToActive, rerr.Reason)
}
