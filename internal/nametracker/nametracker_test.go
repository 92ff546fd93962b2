package nametracker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/regtest"
)

func TestCheckNewNameAccepted(t *testing.T) {
	ctx := t.Context()
	store := regtest.NewMetadataStore()
	tr := New(store)
	require.NoError(t, tr.Refresh(ctx))

	err := tr.CheckNewName(ctx, "new_pkg", false, nil)
	require.NoError(t, err)
}

func TestCheckNewNameRejectsInvalidShape(t *testing.T) {
	ctx := t.Context()
	tr := New(regtest.NewMetadataStore())
	err := tr.CheckNewName(ctx, "1bad", false, nil)
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ErrInvalidInput, rerr.Kind)
}

func TestCheckNewNameRejectsReservedPrefix(t *testing.T) {
	ctx := t.Context()
	tr := New(regtest.NewMetadataStore())
	err := tr.CheckNewName(ctx, "google_foo", false, []string{"google_"})
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ReasonNameReserved, rerr.Reason)

	// A vendor agent may use the reserved prefix.
	require.NoError(t, tr.CheckNewName(ctx, "google_foo", true, []string{"google_"}))
}

func TestCheckNewNameSimilarity(t *testing.T) {
	ctx := t.Context()
	tr := New(regtest.NewMetadataStore())
	tr.Observe("my_pkg")

	err := tr.CheckNewName(ctx, "mypkg", false, nil)
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ReasonSimilarToActive, rerr.Reason)

	// The name itself is always permitted.
	require.NoError(t, tr.CheckNewName(ctx, "my_pkg", false, nil))
}

func TestCheckNewNameModerated(t *testing.T) {
	ctx := t.Context()
	tr := New(regtest.NewMetadataStore())
	tr.ObserveModerated("old_pkg", "policy violation")

	err := tr.CheckNewName(ctx, "old_pkg", false, nil)
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ReasonSimilarToModerated, rerr.Reason)
}

func TestCheckNewNameFallsBackToStore(t *testing.T) {
	ctx := t.Context()
	store := regtest.NewMetadataStore()
	tr := New(store)
	// Do not call Refresh/Observe: the tracker's local index is empty,
	// so CheckNewName must consult the store directly and find nothing.
	require.NoError(t, tr.CheckNewName(ctx, "brand_new", false, nil))
}
