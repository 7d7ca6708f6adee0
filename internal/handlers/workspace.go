package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/3ltranslate/legtrans/internal/translation"
	"github.com/3ltranslate/legtrans/internal/viewer"
)

func (h *Handler) HandleWorkspace(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case "GET":
		h.writeJSON(w, h.workspaces.GetOrCreate(owner).Snapshot())
	case "DELETE":
		h.workspaces.Delete(owner)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.methodNotAllowed(w)
	}
}

func (h *Handler) HandleContrast(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.methodNotAllowed(w)
		return
	}
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	var request struct {
		Factor float64 `json:"factor"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}

	adjusted, err := h.workspaces.GetOrCreate(owner).SetContrast(request.Factor)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, imageResponse{
		MIMEType: adjusted.MIMEType,
		Width:    adjusted.Width,
		Height:   adjusted.Height,
		Factor:   adjusted.Factor,
		DataURL:  adjusted.DataURL(),
	})
}

func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.methodNotAllowed(w)
		return
	}
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	var event viewer.Event
	if !h.decodeJSON(w, r, &event) {
		return
	}

	transform, err := h.workspaces.GetOrCreate(owner).View(event)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, transform)
}

func (h *Handler) HandleOCR(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.methodNotAllowed(w)
		return
	}
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	if !h.requireActive(w, r, owner) {
		return
	}

	var request struct {
		Models   []string `json:"models"`
		Language string   `json:"language"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}

	result, err := h.workspaces.GetOrCreate(owner).RunOCR(r.Context(), request.Models, request.Language)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, result)
}

func (h *Handler) HandleText(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	ws := h.workspaces.GetOrCreate(owner)
	switch r.Method {
	case "GET":
		h.writeJSON(w, map[string]string{"text": ws.Text()})
	case "PUT":
		var request struct {
			Text string `json:"text"`
		}
		if !h.decodeJSON(w, r, &request) {
			return
		}
		ws.SetText(request.Text)
		h.writeJSON(w, map[string]string{"text": request.Text})
	default:
		h.methodNotAllowed(w)
	}
}

type translateResponse struct {
	*translation.Result
	Warning string `json:"warning,omitempty"`
}

func (h *Handler) HandleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.methodNotAllowed(w)
		return
	}
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	if !h.requireActive(w, r, owner) {
		return
	}

	var request struct {
		Text string `json:"text"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}

	result, err := h.workspaces.GetOrCreate(owner).Translate(r.Context(), request.Text)
	if errors.Is(err, translation.ErrPersistenceFailed) && result != nil {
		slog.Warn("Returning translation that could not be saved", "owner", owner, "err", err)
		h.writeJSON(w, translateResponse{Result: result, Warning: "The translation could not be saved to your history."})
		return
	}
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, translateResponse{Result: result})
}
