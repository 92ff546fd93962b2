// Package regtest provides fixtures shared by this module's tests: an
// archive-builder helper and in-memory ArchiveStore/MetadataStore
// implementations, so package-level tests never need a live database or
// object store.
package regtest

import (
	"archive/tar"
	"bytes"

	"github.com/klauspost/compress/gzip"
)

// BuildArchive gzip-tars the given path->content map into archive bytes,
// suitable for feeding to internal/archive.Parse or posting to a test
// server's upload-finish endpoint.
func BuildArchive(files map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			panic(err)
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	if err := gz.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// SimplePubspec returns a minimal valid pubspec.yaml body for name@version.
func SimplePubspec(name, version string) string {
	return "name: " + name + "\nversion: " + version + "\n"
}

// BasicPackageFiles returns a files map for BuildArchive with a valid
// pubspec, a library file, README and CHANGELOG.
func BasicPackageFiles(name, version string) map[string]string {
	return map[string]string{
		"pubspec.yaml":          SimplePubspec(name, version),
		"README.md":             "# " + name,
		"CHANGELOG.md":          "## " + version,
		"lib/" + name + ".dart": "library " + name + ";\n",
	}
}
