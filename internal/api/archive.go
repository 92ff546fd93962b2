package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/archivestore"
)

// downloadArchive implements `GET /packages/<name>-<ver>.tar.gz`: it
// proxies the public bucket object directly. Package names never
// contain '-', so the first hyphen unambiguously splits name from
// version.
func (h *Handler) downloadArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	archiveName := r.PathValue("archive")
	name, version, ok := splitArchiveName(archiveName)
	if !ok {
		badRequest(w, r, "malformed archive filename %q", archiveName)
		return
	}

	key := archivestore.ArchiveKey(name, version)
	info, err := h.reg.Archives.Stat(ctx, archivestore.Public, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !info.Exists {
		writeError(w, r, &registry.Error{Op: "api.downloadArchive", Kind: registry.ErrNotFound, Message: "archive not found"})
		return
	}

	rc, err := h.reg.Archives.Get(ctx, archivestore.Public, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-gzip")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	io.Copy(w, rc)
}

func splitArchiveName(archiveName string) (name, version string, ok bool) {
	const suffix = ".tar.gz"
	if !strings.HasSuffix(archiveName, suffix) {
		return "", "", false
	}
	trimmed := strings.TrimSuffix(archiveName, suffix)
	idx := strings.IndexByte(trimmed, '-')
	if idx <= 0 || idx == len(trimmed)-1 {
		return "", "", false
	}
	return trimmed[:idx], trimmed[idx+1:], true
}
