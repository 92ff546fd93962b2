package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCanonicalizeFixedPoint: Canonicalize is a fixed point
// over its own output for any input that parses.
func TestCanonicalizeFixedPoint(t *testing.T) {
	cases := []struct{ in, want string }{
		{"1.2.3", "1.2.3"},
		{"01.02.03", "1.2.3"},
		{"1.2.3-alpha.1+build.2", "1.2.3-alpha.1+build.2"},
		{"v1.2.3", "1.2.3"},
		{"1.2", "1.2.0"},
	}
	for _, c := range cases {
		got, err := Canonicalize(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got, c.in)

		again, err := Canonicalize(got)
		require.NoError(t, err, got)
		require.Equal(t, got, again)
	}
}

func TestCanonicalizeRejectsGarbage(t *testing.T) {
	_, err := Canonicalize("not-a-version")
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrInvalidInput, rerr.Kind)
}

func TestCompatibleWithSDK(t *testing.T) {
	ok, err := CompatibleWithSDK("", "3.1.0")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CompatibleWithSDK(">=2.0.0 <3.0.0", "2.5.0")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CompatibleWithSDK(">=2.0.0 <3.0.0", "3.5.0")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = CompatibleWithSDK("garbage constraint !!", "3.5.0")
	require.Error(t, err)
}

func TestCompareVersions(t *testing.T) {
	require.Equal(t, -1, CompareVersions("1.0.0", "1.0.1"))
	require.Equal(t, 0, CompareVersions("1.0.0", "1.0.0"))
	require.Equal(t, 1, CompareVersions("2.0.0", "1.9.9"))
	require.True(t, CompareVersions("1.0.0-alpha", "1.0.0") < 0)
}
