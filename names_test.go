package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimilarityKeyIgnoresCaseAndSeparators(t *testing.T) {
	require.Equal(t, SimilarityKey("my_pkg"), SimilarityKey("mypkg"))
	require.Equal(t, SimilarityKey("My-Pkg"), SimilarityKey("my_pkg"))
	require.NotEqual(t, SimilarityKey("my_pkg"), SimilarityKey("other_pkg"))
}

func TestValidIdentifier(t *testing.T) {
	require.True(t, ValidIdentifier("foo_bar"))
	require.True(t, ValidIdentifier("_private"))
	require.True(t, ValidIdentifier("a1"))
	require.False(t, ValidIdentifier(""))
	require.False(t, ValidIdentifier("1bad"))
	require.False(t, ValidIdentifier("has-hyphen"))
	require.False(t, ValidIdentifier("has space"))
}

func TestIsReservedWord(t *testing.T) {
	require.True(t, IsReservedWord("class"))
	require.True(t, IsReservedWord("Class"))
	require.False(t, IsReservedWord("classify"))
}
