package registrycore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/regtest"
)

// TestSetPublisherClearsUploaders exercises the uploaders-XOR-publisher
// rule: transferring a package to a publisher must clear its Uploaders
// list in the same commit.
func TestSetPublisherClearsUploaders(t *testing.T) {
	ctx := t.Context()
	reg, store := newTestRegistry()
	// pubadmin administers pub1 in newTestRegistry's fakeDirectory, so
	// publishing as pubadmin makes the caller admin of both sides.
	owner := registry.AuthenticatedUser{UserID: "pubadmin", Email: "pubadmin@example.com"}
	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("transferable", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	require.NoError(t, reg.SetPublisher(ctx, owner, "transferable", "pub1"))

	pkg, ok, err := store.GetPackage(ctx, "transferable")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "pub1", pkg.PublisherID)
	require.Empty(t, pkg.Uploaders)
}

func TestSetPublisherRequiresTargetAdmin(t *testing.T) {
	ctx := t.Context()
	reg, _ := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("pkg", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	err = reg.SetPublisher(ctx, owner, "pkg", "pub1")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ErrAuthorization, rerr.Kind)
}

// Retraction inside RetractionWindow is allowed and recomputes
// latestVersionKey.
func TestRetractionRecomputesLatest(t *testing.T) {
	ctx := t.Context()
	reg, store := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}

	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("pkg", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)
	stageUpload(t, reg, "up2", regtest.BasicPackageFiles("pkg", "1.1.0"))
	_, err = reg.PublishUploadedBlob(ctx, owner, "up2", "3.0.0")
	require.NoError(t, err)

	pkg, _, err := store.GetPackage(ctx, "pkg")
	require.NoError(t, err)
	require.Equal(t, "1.1.0", pkg.LatestVersionKey)

	require.NoError(t, reg.UpdateVersionOptions(ctx, owner, "pkg", "1.1.0", true, "3.0.0"))

	pkg, _, err = store.GetPackage(ctx, "pkg")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", pkg.LatestVersionKey)
}

func TestRetractionOutsideWindowRejected(t *testing.T) {
	ctx := t.Context()
	reg, store := newTestRegistry()
	reg.cfg.RetractionWindow = 0
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}

	stageUpload(t, reg, "up1", regtest.BasicPackageFiles("pkg", "1.0.0"))
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "3.0.0")
	require.NoError(t, err)

	v, ok, err := store.GetVersion(ctx, "pkg", "1.0.0")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, time.Now().UTC().Sub(v.Created) >= 0)

	err = reg.UpdateVersionOptions(ctx, owner, "pkg", "1.0.0", true, "3.0.0")
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ErrInvalidInput, rerr.Kind)
}

// TestSelectLatestDeterministic: latest-version selection is
// deterministic under SDK-constrained candidates, preferring the newest
// compatible stable release over an incompatible newer one.
func TestSelectLatestDeterministic(t *testing.T) {
	ctx := t.Context()
	reg, store := newTestRegistry()
	owner := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}

	files := regtest.BasicPackageFiles("sdkpkg", "1.0.0")
	stageUpload(t, reg, "up1", files)
	_, err := reg.PublishUploadedBlob(ctx, owner, "up1", "2.0.0")
	require.NoError(t, err)

	files2 := regtest.BasicPackageFiles("sdkpkg", "2.0.0")
	files2["pubspec.yaml"] = "name: sdkpkg\nversion: 2.0.0\nenvironment:\n  sdk: '>=3.0.0 <4.0.0'\n"
	stageUpload(t, reg, "up2", files2)
	_, err = reg.PublishUploadedBlob(ctx, owner, "up2", "2.0.0")
	require.NoError(t, err)

	pkg, _, err := store.GetPackage(ctx, "sdkpkg")
	require.NoError(t, err)
	// The caller's defaultSDKVersion (2.0.0) doesn't satisfy sdkpkg@2.0.0's
	// ">=3.0.0 <4.0.0" constraint, so latest falls back to the
	// unconstrained 1.0.0 rather than the newer, incompatible release.
	require.Equal(t, "1.0.0", pkg.LatestVersionKey)
}
