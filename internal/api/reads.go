package api

import (
	"encoding/json"
	"net/http"

	"github.com/klauspost/compress/gzip"
	"github.com/package-url/packageurl-go"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/registrycore"
)

// purlType is the package-url type for this ecosystem's archives: the
// format (pubspec.yaml, lib/*.dart) is Dart's, whose registered purl
// type is "pub" (see https://github.com/package-url/purl-spec).
const purlType = "pub"

// versionJSON is the wire shape for one version entry in a listVersions
// response and the body of a lookupVersion response.
type versionJSON struct {
	Version       string           `json:"version"`
	Pubspec       registry.Pubspec `json:"pubspec"`
	ArchiveURL    string           `json:"archive_url"`
	ArchiveSHA256 string           `json:"archive_sha256"`
	Published     string           `json:"published"`
	Retracted     bool             `json:"retracted"`
	PURL          string           `json:"purl"`
}

func toVersionJSON(v registrycore.VersionView) versionJSON {
	purl := packageurl.PackageURL{Type: purlType, Name: v.Pubspec.Name, Version: v.Version}
	return versionJSON{
		Version:       v.Version,
		Pubspec:       v.Pubspec,
		ArchiveURL:    "/packages/" + v.Pubspec.Name + "-" + v.Version + ".tar.gz",
		ArchiveSHA256: v.SHA256Hex,
		Published:     v.Created.UTC().Format(timeFormat),
		Retracted:     v.IsRetracted,
		PURL:          purl.String(),
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

type listVersionsJSON struct {
	Name             string        `json:"name"`
	Versions         []versionJSON `json:"versions"`
	Latest           *versionJSON  `json:"latest,omitempty"`
	LatestPrerelease *versionJSON  `json:"latestPrerelease,omitempty"`
	IsDiscontinued   bool          `json:"isDiscontinued"`
	ReplacedBy       string        `json:"replacedBy,omitempty"`
	IsUnlisted       bool          `json:"isUnlisted"`
}

// listVersions implements `GET /api/packages/<name>`: every
// non-retracted version sorted ascending by semver, gzip-encoded.
func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	view, err := h.reg.ListVersions(ctx, name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := listVersionsJSON{
		Name:           view.Name,
		IsDiscontinued: view.IsDiscontinued,
		ReplacedBy:     view.ReplacedBy,
		IsUnlisted:     view.IsUnlisted,
	}
	for _, v := range view.Versions {
		body.Versions = append(body.Versions, toVersionJSON(v))
	}
	if view.Latest != nil {
		vj := toVersionJSON(*view.Latest)
		body.Latest = &vj
	}
	if view.LatestPrerelease != nil {
		vj := toVersionJSON(*view.LatestPrerelease)
		body.LatestPrerelease = &vj
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Encoding", "gzip")
	gw := gzip.NewWriter(w)
	defer gw.Close()
	if err := json.NewEncoder(gw).Encode(body); err != nil {
		writeError(w, r, err)
	}
}

// lookupVersion implements `GET /api/packages/<name>/versions/<ver>`.
func (h *Handler) lookupVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	version := r.PathValue("version")

	v, err := h.reg.LookupVersion(ctx, name, version)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toVersionJSON(*v))
}
