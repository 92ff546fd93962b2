// Package archive implements the ArchiveParser component:
// it reads a gzipped tar upload, bounded to a configured maximum size,
// and extracts the pubspec manifest and the asset files (README,
// CHANGELOG, example, LICENSE) a publish needs.
//
// A package upload is a single linear read, not a random-access
// filesystem, so the parser reads straight off archive/tar +
// compress/gzip in one pass.
package archive

import (
	"archive/tar"
	"crypto/sha256"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/pubregistry/registry"
)

// libraryExt is the ecosystem's public-library file extension.
const libraryExt = ".dart"

// maxAssetBytes bounds the text stored per asset.
const maxAssetBytes = 128 * 1024

var (
	readmeCandidates    = []string{"readme.md", "readme", "readme.txt"}
	changelogCandidates = []string{"changelog.md", "changelog", "changelog.txt"}
	licenseCandidates   = []string{"license", "license.md", "license.txt", "copying"}
)

// Asset describes one extracted asset file, before being converted to a
// registry.PackageVersionAsset (which needs the owning package/version,
// not known to this package).
type Asset struct {
	Path      string
	Content   string
	Truncated bool
}

// Summary is the result of a successful or partially-successful parse.
// Issues is non-empty when the archive has a problem that should reject
// the publish; a non-fatal truncation is recorded on the
// Asset itself, not as an Issue.
type Summary struct {
	Pubspec     registry.Pubspec
	PubspecText string // raw pubspec.yaml contents, for the "pubspec" asset
	Libraries   []string

	Readme    *Asset
	Changelog *Asset
	Example   *Asset
	License   *Asset

	SHA256 [32]byte
	Size   int64

	// Issues lists every problem found; a non-empty Issues means the
	// caller must reject the publish with ErrPackageRejected (the first
	// issue is used as the error's Message).
	Issues []string
}

// entry is one regular file read out of the tar stream.
type entry struct {
	path string
	data []byte
}

// Parse reads a gzip+tar archive from r, bounded to maxSize bytes, and
// returns the extracted Summary. Parse never returns an error for
// archive-content problems (missing pubspec, git dependency, duplicate
// yaml keys, ...) — those are reported via Summary.Issues
// so the caller can build one PackageRejected error with the right
// Reason. Parse returns a non-nil error only for I/O or format failures
// (corrupt gzip, corrupt tar, size exceeded) that make the archive
// entirely unreadable.
func Parse(r io.Reader, maxSize int64) (*Summary, error) {
	h := sha256.New()
	counted := &countingReader{r: io.TeeReader(r, h), limit: maxSize}

	gz, err := gzip.NewReader(counted)
	if err != nil {
		return nil, fmt.Errorf("archive: opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	s := &Summary{}
	var pubspecRaw []byte
	haveExampleDir := false
	var entries []entry

	for {
		hdr, err := tr.Next()
		switch {
		case err == io.EOF:
			goto done
		case err != nil:
			return nil, fmt.Errorf("archive: reading tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		p := normPath(hdr.Name)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "example/") {
			haveExampleDir = true
		}
		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size+1))
		if err != nil {
			return nil, fmt.Errorf("archive: reading %q: %w", p, err)
		}
		if int64(len(data)) != hdr.Size {
			return nil, fmt.Errorf("archive: %q: size mismatch", p)
		}
		entries = append(entries, entry{path: p, data: data})

		if p == "pubspec.yaml" || p == "pubspec.yml" {
			pubspecRaw = data
		}
	}
done:
	// Drain whatever the gzip reader left unconsumed so the digest covers
	// the archive exactly as uploaded.
	if _, err := io.Copy(io.Discard, counted); err != nil && !counted.exceeded {
		return nil, fmt.Errorf("archive: draining archive: %w", err)
	}
	if counted.exceeded {
		return nil, fmt.Errorf("archive: exceeds maximum size of %d bytes", maxSize)
	}
	s.Size = counted.n
	h.Sum(s.SHA256[:0])

	if pubspecRaw == nil {
		s.Issues = append(s.Issues, "archive does not contain a pubspec.yaml at its root")
		return s, nil
	}
	s.PubspecText = string(pubspecRaw)
	if err := checkDuplicateKeys(pubspecRaw); err != nil {
		s.Issues = append(s.Issues, "pubspec.yaml: "+err.Error())
	}
	parsed, err := decodePubspec(pubspecRaw)
	if err != nil {
		s.Issues = append(s.Issues, "pubspec.yaml: "+err.Error())
		return s, nil
	}
	s.Pubspec = parsed
	if s.Pubspec.Name == "" {
		s.Issues = append(s.Issues, "pubspec.yaml: missing required field \"name\"")
	}
	if s.Pubspec.Version == "" {
		s.Issues = append(s.Issues, "pubspec.yaml: missing required field \"version\"")
	}
	for name, dep := range s.Pubspec.Dependencies {
		if dep.GitURL != "" {
			s.Issues = append(s.Issues, fmt.Sprintf("dependency %q uses a git source, which is not allowed", name))
		}
	}

	lowerIdx := make(map[string]*entry, len(entries))
	for i := range entries {
		lowerIdx[strings.ToLower(entries[i].path)] = &entries[i]
	}

	s.Readme = pickAsset(lowerIdx, readmeCandidates, "")
	s.Changelog = pickAsset(lowerIdx, changelogCandidates, "")
	s.License = pickAsset(lowerIdx, licenseCandidates, "")
	if haveExampleDir {
		s.Example = pickExample(entries, s.Pubspec.Name)
	}

	for _, e := range entries {
		if !strings.HasPrefix(e.path, "lib/") || strings.HasPrefix(e.path, "lib/src/") {
			continue
		}
		if strings.HasSuffix(e.path, libraryExt) {
			s.Libraries = append(s.Libraries, e.path)
		}
	}
	sort.Strings(s.Libraries)

	return s, nil
}

// pickAsset finds the first candidate name (case-insensitive, archive
// root only) present in entries.
func pickAsset(lowerIdx map[string]*entry, candidates []string, dirPrefix string) *Asset {
	for _, c := range candidates {
		if e, ok := lowerIdx[dirPrefix+c]; ok {
			return truncate(e)
		}
	}
	return nil
}

// pickExample finds the example asset: a name-derived candidate list
// under example/, falling back to the first regular file under example/.
func pickExample(entries []entry, pkgName string) *Asset {
	candidates := []string{
		"example/readme.md",
		"example/main" + libraryExt,
		"example/lib/main" + libraryExt,
	}
	if pkgName != "" {
		candidates = append(candidates, "example/"+pkgName+libraryExt)
	}
	lowerIdx := make(map[string]*entry, len(entries))
	for i := range entries {
		lowerIdx[strings.ToLower(entries[i].path)] = &entries[i]
	}
	for _, c := range candidates {
		if e, ok := lowerIdx[c]; ok {
			return truncate(e)
		}
	}
	for i := range entries {
		if strings.HasPrefix(entries[i].path, "example/") {
			return truncate(&entries[i])
		}
	}
	return nil
}

func truncate(e *entry) *Asset {
	a := &Asset{Path: e.path}
	if len(e.data) > maxAssetBytes {
		a.Content = string(e.data[:maxAssetBytes])
		a.Truncated = true
	} else {
		a.Content = string(e.data)
	}
	return a
}

// normPath cleans an archive member path: strips any leading "./" or
// "/", resolves ".." segments without ever climbing above the archive
// root, and normalizes separators.
func normPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// countingReader enforces a byte ceiling on the underlying reader: the
// Read that takes the total past limit, and every Read after it, returns
// io.ErrUnexpectedEOF with exceeded set.
type countingReader struct {
	r        io.Reader
	n        int64
	limit    int64
	exceeded bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	if c.exceeded {
		return 0, io.ErrUnexpectedEOF
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.limit {
		c.exceeded = true
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}
