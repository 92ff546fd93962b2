// Package api implements the HTTP API surface: request parsing,
// routing, response encoding, and the mapping from domain errors to
// HTTP status codes. A plain *http.ServeMux wrapped in a small type,
// jsonerr.Response bodies, and zlog call-site logging rather than a web
// framework.
package api

import (
	"errors"
	"net/http"

	"github.com/quay/zlog"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/pkg/jsonerr"
)

// writeError maps err to an HTTP status and jsonerr.Response body.
// Errors that are not a *registry.Error are treated
// as internal and logged with their full detail; the taxonomy never
// leaks internal error text to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var rerr *registry.Error
	if !errors.As(err, &rerr) {
		zlog.Error(ctx).Err(err).Msg("unmapped internal error")
		jsonerr.Error(w, &jsonerr.Response{Code: "internal", Message: "internal server error"}, http.StatusInternalServerError)
		return
	}

	code, status := errorCode(rerr)
	if status == http.StatusInternalServerError {
		zlog.Error(ctx).Err(rerr).Str("op", rerr.Op).Msg("internal error")
		jsonerr.Error(w, &jsonerr.Response{Code: code, Message: "internal server error"}, status)
		return
	}
	zlog.Debug(ctx).Err(rerr).Str("op", rerr.Op).Str("kind", string(rerr.Kind)).Msg("request rejected")
	msg := rerr.Message
	if msg == "" {
		msg = rerr.Reason
	}
	jsonerr.Error(w, &jsonerr.Response{Code: code, Message: msg}, status)
}

// errorCode maps a domain ErrorKind (and, for package-rejected/
// authorization errors, the Reason sub-code) to a response code string
// and HTTP status.
func errorCode(e *registry.Error) (code string, status int) {
	switch e.Kind {
	case registry.ErrMissingAuthentication:
		return "missing-authentication", http.StatusUnauthorized
	case registry.ErrInvalidInput:
		return "invalid-input", http.StatusBadRequest
	case registry.ErrPackageRejected:
		if e.Reason != "" {
			return "package-rejected/" + e.Reason, http.StatusBadRequest
		}
		return "package-rejected", http.StatusBadRequest
	case registry.ErrAuthorization:
		if e.Reason != "" {
			return "authorization-exception/" + e.Reason, http.StatusForbidden
		}
		return "authorization-exception", http.StatusForbidden
	case registry.ErrNotFound:
		return "not-found", http.StatusNotFound
	case registry.ErrNotAcceptable:
		return "not-acceptable", http.StatusNotAcceptable
	case registry.ErrOperationForbidden:
		// The upload switch is a client-correctable condition, not a
		// state conflict.
		if e.Reason == registry.ReasonUploadRestricted {
			return "upload-restricted", http.StatusBadRequest
		}
		if e.Reason != "" {
			return "operation-forbidden/" + e.Reason, http.StatusConflict
		}
		return "operation-forbidden", http.StatusConflict
	case registry.ErrAlreadyExists:
		return "already-exists", http.StatusConflict
	default:
		return "internal", http.StatusInternalServerError
	}
}
