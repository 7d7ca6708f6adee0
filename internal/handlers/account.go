package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/models"
	"github.com/3ltranslate/legtrans/internal/storage"
	"github.com/3ltranslate/legtrans/internal/subscription"
)

var timeNow = time.Now

// HandleCredentials stores or clears the caller's own OCR API key. GET never
// returns the key.
func (h *Handler) HandleCredentials(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	if h.keys == nil {
		h.writeError(w, "Credential storage is not configured", http.StatusNotImplemented)
		return
	}
	stored := h.keys.Stored(owner)

	switch r.Method {
	case "GET":
		_, err := stored.Get(r.Context())
		if err != nil && !errors.Is(err, credentials.ErrMissing) {
			h.writeErr(w, err)
			return
		}
		h.writeJSON(w, credentialsResponse{Configured: err == nil, Shared: h.keys.HasShared(r.Context())})
	case "PUT":
		var request struct {
			APIKey string `json:"api_key"`
		}
		if !h.decodeJSON(w, r, &request) {
			return
		}
		if strings.TrimSpace(request.APIKey) == "" {
			h.writeError(w, "api_key is required", http.StatusBadRequest)
			return
		}
		if err := stored.Set(r.Context(), request.APIKey); err != nil {
			h.writeErr(w, err)
			return
		}
		h.writeJSON(w, credentialsResponse{Configured: true, Shared: h.keys.HasShared(r.Context())})
	case "DELETE":
		if err := stored.Invalidate(r.Context()); err != nil {
			h.writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.methodNotAllowed(w)
	}
}

type credentialsResponse struct {
	// Configured is true when the caller stored a key of their own
	Configured bool `json:"configured"`
	Shared     bool `json:"shared"`
}

type profileResponse struct {
	*models.Profile
	Active bool `json:"active"`
}

func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.methodNotAllowed(w)
		return
	}
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	p, err := h.subscriptions.Profile(r.Context(), owner)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, profileResponse{Profile: p, Active: subscription.Active(p, timeNow())})
}

func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.methodNotAllowed(w)
		return
	}
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	var request struct {
		Code string `json:"code"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Code) == "" {
		h.writeError(w, "code is required", http.StatusBadRequest)
		return
	}

	p, err := h.subscriptions.Redeem(r.Context(), owner, request.Code)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, profileResponse{Profile: p, Active: subscription.Active(p, timeNow())})
}

func (h *Handler) HandleTranslators(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		q := r.URL.Query()
		list, err := h.translators.ListTranslators(r.Context(), storage.TranslatorFilter{
			Query:  q.Get("q"),
			Wilaya: q.Get("wilaya"),
		})
		if err != nil {
			h.writeErr(w, err)
			return
		}
		h.writeJSON(w, list)
	case "POST":
		owner, ok := h.ownerOrError(w, r)
		if !ok {
			return
		}
		var t models.Translator
		if !h.decodeJSON(w, r, &t) {
			return
		}
		t.UserID = owner
		created, err := h.translators.CreateTranslator(r.Context(), t)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		h.writeJSONStatus(w, http.StatusCreated, created)
	default:
		h.methodNotAllowed(w)
	}
}
