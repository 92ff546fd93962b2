package registrycore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/regtest"
)

// TestHardDeleteVersionBlocksRepublish exercises sticky version
// deletion: once a version is hard-deleted, the exact string can never
// be republished, even by the original uploader.
func TestHardDeleteVersionBlocksRepublish(t *testing.T) {
	ctx := t.Context()
	reg, store := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	admin := registry.AuthenticatedUser{UserID: "root", SiteAdmin: true}

	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("doomed", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	require.NoError(t, reg.HardDeleteVersion(ctx, admin, "doomed", "1.0.0"))

	_, ok, err := store.GetVersion(ctx, "doomed", "1.0.0")
	require.NoError(t, err)
	require.False(t, ok)

	stageUpload(t, reg, "up2", regtest.BasicPackageFiles("doomed", "1.0.0"))
	_, err = reg.PublishUploadedBlob(ctx, owner, "up2", "3.0.0")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ReasonVersionDeleted, rerr.Reason)
}

func TestHardDeleteVersionRequiresSiteAdmin(t *testing.T) {
	ctx := t.Context()
	reg, _ := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("pkg", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	err = reg.HardDeleteVersion(ctx, owner, "pkg", "1.0.0")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ErrAuthorization, rerr.Kind)
}

func TestTombstonePackageBlocksSimilarNames(t *testing.T) {
	ctx := t.Context()
	reg, store := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	admin := registry.AuthenticatedUser{UserID: "root", SiteAdmin: true}

	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("bad_actor", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	require.NoError(t, reg.TombstonePackage(ctx, admin, "bad_actor", "policy violation"))

	_, ok, err := store.GetPackage(ctx, "bad_actor")
	require.NoError(t, err)
	require.False(t, ok)

	stageUpload(t, reg, "up2", regtest.BasicPackageFiles("badactor", "1.0.0"))
	_, err = reg.PublishUploadedBlob(ctx, owner, "up2", "3.0.0")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ReasonSimilarToModerated, rerr.Reason)
}
