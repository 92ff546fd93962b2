package cachelayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalGetSetPurge(t *testing.T) {
	ctx := t.Context()
	var c Local

	_, ok, err := c.Get(ctx, PackageKey("foo"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, PackageKey("foo"), []byte("bar"), time.Minute))
	v, ok, err := c.Get(ctx, PackageKey("foo"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("bar"), v)

	require.NoError(t, c.Set(ctx, VersionsKey("foo"), []byte("v1"), time.Minute))
	require.NoError(t, c.Purge(ctx, PackagePrefix("foo")))

	_, ok, err = c.Get(ctx, PackageKey("foo"))
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = c.Get(ctx, VersionsKey("foo"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocalExpiry(t *testing.T) {
	ctx := t.Context()
	var c Local
	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}
