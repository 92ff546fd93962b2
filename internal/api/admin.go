package api

import (
	"encoding/json"
	"net/http"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/registrycore"
)

// updateOptionsRequest is the PUT body for
// `/api/packages/<name>/options`: only fields present in the
// body are changed, so pointers distinguish "omitted" from "false"/"".
type updateOptionsRequest struct {
	IsDiscontinued *bool   `json:"isDiscontinued"`
	ReplacedBy     *string `json:"replacedBy"`
	IsUnlisted     *bool   `json:"isUnlisted"`
}

func (h *Handler) updateOptions(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	var req updateOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "could not decode request body: %v", err)
		return
	}

	opts := registrycore.PackageOptions{
		IsDiscontinued: req.IsDiscontinued,
		ReplacedBy:     req.ReplacedBy,
		IsUnlisted:     req.IsUnlisted,
	}
	if err := h.reg.UpdateOptions(r.Context(), agent, name, opts); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(withMessage("options updated"))
}

type updateVersionOptionsRequest struct {
	IsRetracted bool   `json:"isRetracted"`
	SDKVersion  string `json:"sdkVersion"`
}

func (h *Handler) updateVersionOptions(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	version := r.PathValue("version")

	var req updateVersionOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "could not decode request body: %v", err)
		return
	}

	if err := h.reg.UpdateVersionOptions(r.Context(), agent, name, version, req.IsRetracted, req.SDKVersion); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(withMessage("version options updated"))
}

type setPublisherRequest struct {
	PublisherID string `json:"publisherId"`
}

func (h *Handler) setPublisher(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	var req setPublisherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "could not decode request body: %v", err)
		return
	}
	if req.PublisherID == "" {
		badRequest(w, r, "publisherId is required")
		return
	}

	if err := h.reg.SetPublisher(r.Context(), agent, name, req.PublisherID); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

func (h *Handler) updateAutomatedPublishing(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	var cfg registry.AutomatedPublishing
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		badRequest(w, r, "could not decode request body: %v", err)
		return
	}

	if err := h.reg.UpdateAutomatedPublishing(r.Context(), agent, name, cfg); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

type addUploaderRequest struct {
	Email string `json:"email"`
}

func (h *Handler) addUploader(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	var req addUploaderRequest
	switch ct := r.Header.Get("Content-Type"); {
	case ct == "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, r, "could not decode request body: %v", err)
			return
		}
	default:
		if err := r.ParseForm(); err != nil {
			badRequest(w, r, "could not parse request body: %v", err)
			return
		}
		req.Email = r.PostForm.Get("email")
	}
	if req.Email == "" {
		badRequest(w, r, "email is required")
		return
	}

	if err := h.reg.AddUploader(r.Context(), agent, name, req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(withMessage(req.Email + " has been added as an uploader"))
}

func (h *Handler) removeUploader(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.requireAgent(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	email := r.PathValue("email")

	if err := h.reg.RemoveUploader(r.Context(), agent, name, email); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(withMessage(email + " has been removed as an uploader"))
}
