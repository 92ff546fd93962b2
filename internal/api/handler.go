package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/auth"
	"github.com/pubregistry/registry/internal/registrycore"
)

var _ http.Handler = (*Handler)(nil)

// Handler serves the registry API endpoints, routed on the standard
// library's method-and-wildcard ServeMux patterns.
type Handler struct {
	*http.ServeMux

	reg      *registrycore.Registry
	verifier *auth.Verifier
}

// New builds the API surface over reg, authenticating bearer tokens
// with verifier.
func New(reg *registrycore.Registry, verifier *auth.Verifier) *Handler {
	h := &Handler{reg: reg, verifier: verifier}
	m := http.NewServeMux()

	m.HandleFunc("GET /api/packages/{name}", h.listVersions)
	m.HandleFunc("GET /api/packages/{name}/versions/{version}", h.lookupVersion)
	m.HandleFunc("GET /packages/{archive}", h.downloadArchive)

	m.HandleFunc("POST /api/packages/versions/new", h.startUpload)
	m.HandleFunc("GET /api/packages/versions/newUploadFinish", h.finishUpload)

	m.HandleFunc("PUT /api/packages/{name}/options", h.updateOptions)
	m.HandleFunc("PUT /api/packages/{name}/versions/{version}/options", h.updateVersionOptions)
	m.HandleFunc("PUT /api/packages/{name}/publisher", h.setPublisher)
	m.HandleFunc("PUT /api/packages/{name}/automatedPublishing", h.updateAutomatedPublishing)
	m.HandleFunc("POST /api/packages/{name}/uploaders", h.addUploader)
	m.HandleFunc("DELETE /api/packages/{name}/uploaders/{email}", h.removeUploader)

	h.ServeMux = m
	return h
}

// authenticate extracts and verifies the bearer token. It returns a
// *registry.Error of kind ErrMissingAuthentication if no token is
// present; callers that require auth should writeError and return on a
// non-nil error.
func (h *Handler) authenticate(r *http.Request) (registry.Agent, error) {
	const op = "api.authenticate"
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return nil, &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "missing Authorization header"}
	}
	token, ok := strings.CutPrefix(hdr, "Bearer ")
	if !ok || token == "" {
		return nil, &registry.Error{Op: op, Kind: registry.ErrMissingAuthentication, Message: "expected a Bearer token"}
	}
	return h.verifier.Parse(token)
}

// requireAgent is authenticate plus the writeError/return-false dance
// every mutating handler needs at its top.
func (h *Handler) requireAgent(w http.ResponseWriter, r *http.Request) (registry.Agent, bool) {
	agent, err := h.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return agent, true
}

// successMessage is the `{ success: { message } }` envelope returned by
// the upload-finalize and uploader-management endpoints.
type successMessage struct {
	Success struct {
		Message string `json:"message"`
	} `json:"success"`
}

func withMessage(msg string) successMessage {
	var s successMessage
	s.Success.Message = msg
	return s
}

func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	writeError(w, r, &registry.Error{
		Op: "api", Kind: registry.ErrInvalidInput,
		Message: fmt.Sprintf(format, args...),
	})
}
