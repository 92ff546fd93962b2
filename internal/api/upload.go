package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// startUploadRequest is the POST body for
// `/api/packages/versions/new`: the client supplies the URL it wants
// redirected back to once the signed POST completes.
type startUploadRequest struct {
	RedirectURL string `json:"redirectUrl"`
}

type startUploadResponse struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// startUpload implements `POST /api/packages/versions/new`.
func (h *Handler) startUpload(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}

	var req startUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "could not decode request body: %v", err)
		return
	}
	if req.RedirectURL == "" {
		badRequest(w, r, "redirectUrl is required")
		return
	}

	policy, err := h.reg.StartUpload(r.Context(), agent, req.RedirectURL)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(startUploadResponse{URL: policy.UploadURL, Fields: policy.Fields})
}

// finishUpload implements `GET /api/packages/versions/newUploadFinish`:
// it finalizes the upload identified by the upload_id query parameter.
func (h *Handler) finishUpload(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}

	uploadID := r.URL.Query().Get("upload_id")
	if uploadID == "" {
		badRequest(w, r, "upload_id is required")
		return
	}
	sdk := r.URL.Query().Get("sdk")

	result, err := h.reg.PublishUploadedBlob(r.Context(), agent, uploadID, sdk)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(withMessage(fmt.Sprintf("Successfully uploaded new version of %s %s.", result.Package, result.Version)))
}
