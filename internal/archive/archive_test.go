package archive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry/internal/regtest"
)

func TestParseBasicPackage(t *testing.T) {
	data := regtest.BuildArchive(regtest.BasicPackageFiles("new_pkg", "1.2.3"))
	s, err := Parse(bytes.NewReader(data), 100<<20)
	require.NoError(t, err)
	require.Empty(t, s.Issues)
	require.Equal(t, "new_pkg", s.Pubspec.Name)
	require.Equal(t, "1.2.3", s.Pubspec.Version)
	require.NotNil(t, s.Readme)
	require.NotNil(t, s.Changelog)
	require.Equal(t, []string{"lib/new_pkg.dart"}, s.Libraries)
}

func TestParseMissingPubspec(t *testing.T) {
	data := regtest.BuildArchive(map[string]string{"README.md": "hi"})
	s, err := Parse(bytes.NewReader(data), 100<<20)
	require.NoError(t, err)
	require.NotEmpty(t, s.Issues)
}

func TestParseRejectsGitDependency(t *testing.T) {
	files := regtest.BasicPackageFiles("foo", "1.0.0")
	files["pubspec.yaml"] = "name: foo\nversion: 1.0.0\ndependencies:\n  bar:\n    git: https://example.com/bar.git\n"
	data := regtest.BuildArchive(files)
	s, err := Parse(bytes.NewReader(data), 100<<20)
	require.NoError(t, err)
	require.NotEmpty(t, s.Issues)
}

func TestParseExcludesLibSrc(t *testing.T) {
	files := regtest.BasicPackageFiles("foo", "1.0.0")
	files["lib/src/internal.dart"] = "part of foo;"
	data := regtest.BuildArchive(files)
	s, err := Parse(bytes.NewReader(data), 100<<20)
	require.NoError(t, err)
	require.Equal(t, []string{"lib/foo.dart"}, s.Libraries)
}

func TestParseTooLarge(t *testing.T) {
	files := map[string]string{
		"pubspec.yaml": "name: foo\nversion: 1.0.0\n",
		"lib/foo.dart": string(bytes.Repeat([]byte("a"), 1024)),
	}
	data := regtest.BuildArchive(files)
	_, err := Parse(bytes.NewReader(data), 16)
	require.Error(t, err)
}

func TestParseDuplicateKeys(t *testing.T) {
	files := map[string]string{
		"pubspec.yaml": "name: foo\nname: bar\nversion: 1.0.0\n",
	}
	data := regtest.BuildArchive(files)
	s, err := Parse(bytes.NewReader(data), 100<<20)
	require.NoError(t, err)
	require.NotEmpty(t, s.Issues)
}

func TestParseTruncatesLargeAssets(t *testing.T) {
	big := string(bytes.Repeat([]byte("x"), 200*1024))
	files := regtest.BasicPackageFiles("foo", "1.0.0")
	files["README.md"] = big
	data := regtest.BuildArchive(files)
	s, err := Parse(bytes.NewReader(data), 100<<20)
	require.NoError(t, err)
	require.True(t, s.Readme.Truncated)
	require.Len(t, s.Readme.Content, maxAssetBytes)
}
