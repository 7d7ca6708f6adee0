package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/images"
	"github.com/3ltranslate/legtrans/internal/ocr"
	"github.com/3ltranslate/legtrans/internal/storage"
	"github.com/3ltranslate/legtrans/internal/subscription"
	"github.com/3ltranslate/legtrans/internal/translation"
	"github.com/3ltranslate/legtrans/internal/workspace"
)

// UserHeader carries the user id set by the authenticating proxy
const UserHeader = "X-User-ID"

type Deps struct {
	Workspaces    *workspace.Store
	History       storage.History
	Translators   storage.Translators
	Subscriptions *subscription.Service
	// Keys holds each user's own OCR key; nil disables /api/credentials
	Keys      *credentials.Keyring
	Fetcher   *images.Fetcher
	StaticDir string
	// RequireSubscription gates OCR and translation on an active subscription
	RequireSubscription bool
}

type Handler struct {
	workspaces    *workspace.Store
	history       storage.History
	translators   storage.Translators
	subscriptions *subscription.Service
	keys          *credentials.Keyring
	fetcher       *images.Fetcher
	staticDir     string
	gated         bool
}

func New(d Deps) *Handler {
	if d.Fetcher == nil {
		d.Fetcher = images.NewFetcher()
	}
	if d.StaticDir == "" {
		d.StaticDir = "static"
	}
	return &Handler{
		workspaces:    d.Workspaces,
		history:       d.History,
		translators:   d.Translators,
		subscriptions: d.Subscriptions,
		keys:          d.Keys,
		fetcher:       d.Fetcher,
		staticDir:     d.StaticDir,
		gated:         d.RequireSubscription,
	}
}

// Routes registers every endpoint on a new mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/workspace", h.HandleWorkspace)
	mux.HandleFunc("/api/images", h.HandleImages)
	mux.HandleFunc("/api/images/contrast", h.HandleContrast)
	mux.HandleFunc("/api/view", h.HandleView)
	mux.HandleFunc("/api/ocr", h.HandleOCR)
	mux.HandleFunc("/api/text", h.HandleText)
	mux.HandleFunc("/api/translate", h.HandleTranslate)
	mux.HandleFunc("/api/history", h.HandleHistory)
	mux.HandleFunc("/api/history/", h.HandleHistoryDetail)
	mux.HandleFunc("/api/credentials", h.HandleCredentials)
	mux.HandleFunc("/api/activate", h.HandleActivate)
	mux.HandleFunc("/api/profile", h.HandleProfile)
	mux.HandleFunc("/api/translators", h.HandleTranslators)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	mux.HandleFunc("/", h.HandleStatic)
	return mux
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	h.writeCategorized(w, message, "", code)
}

func (h *Handler) writeCategorized(w http.ResponseWriter, message, category string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message, "category", category, "status", code)
	} else {
		slog.Warn(message, "category", category, "status", code)
	}
	h.writeJSONStatus(w, code, errorResponse{Error: message, Category: category})
}

// writeErr maps a domain error to its status code and category
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var ocrErr *ocr.Error
	var validation *storage.ValidationError
	var bad *badRequest
	switch {
	case errors.As(err, &bad):
		h.writeCategorized(w, bad.Error(), "invalid_input", http.StatusBadRequest)
	case errors.As(err, &ocrErr):
		h.writeCategorized(w, ocrErr.Message(), string(ocrErr.Category), ocrErr.Category.HTTPStatus())
	case errors.As(err, &validation):
		h.writeCategorized(w, validation.Error(), "invalid_input", http.StatusBadRequest)
	case errors.Is(err, credentials.ErrMissing):
		h.writeCategorized(w, ocr.Message(ocr.InvalidCredential, err.Error()), string(ocr.InvalidCredential), http.StatusUnauthorized)
	case errors.Is(err, images.ErrDecode):
		h.writeCategorized(w, err.Error(), "decode_error", http.StatusBadRequest)
	case errors.Is(err, images.ErrTooLarge):
		h.writeCategorized(w, err.Error(), "invalid_input", http.StatusRequestEntityTooLarge)
	case errors.Is(err, images.ErrUnsupportedType), errors.Is(err, images.ErrEmptyImage),
		errors.Is(err, images.ErrInvalidFactor),
		errors.Is(err, ocr.ErrEmptyImage), errors.Is(err, ocr.ErrNoModels),
		errors.Is(err, workspace.ErrNoImage), errors.Is(err, workspace.ErrNoText),
		errors.Is(err, translation.ErrEmptySource):
		h.writeCategorized(w, err.Error(), "invalid_input", http.StatusBadRequest)
	case errors.Is(err, workspace.ErrBusy):
		h.writeCategorized(w, err.Error(), "busy", http.StatusConflict)
	case errors.Is(err, subscription.ErrInactive):
		h.writeCategorized(w, err.Error(), "subscription_required", http.StatusPaymentRequired)
	case errors.Is(err, translation.ErrTranslationFailed):
		h.writeCategorized(w, err.Error(), "translation_failed", http.StatusBadGateway)
	case errors.Is(err, storage.ErrNotFound):
		h.writeCategorized(w, err.Error(), "not_found", http.StatusNotFound)
	case errors.Is(err, storage.ErrInvalidCode):
		h.writeCategorized(w, err.Error(), "invalid_code", http.StatusBadRequest)
	case errors.Is(err, storage.ErrAlreadyRegistered):
		h.writeCategorized(w, err.Error(), "conflict", http.StatusConflict)
	default:
		h.writeCategorized(w, err.Error(), string(ocr.UnknownError), http.StatusInternalServerError)
	}
}

// Request helpers
func (h *Handler) ownerOrError(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get(UserHeader)
	if owner == "" {
		h.writeError(w, "Missing "+UserHeader+" header", http.StatusUnauthorized)
		return "", false
	}
	return owner, true
}

// requireActive gates paid operations on the owner's subscription
func (h *Handler) requireActive(w http.ResponseWriter, r *http.Request, owner string) bool {
	if !h.gated {
		return true
	}
	if err := h.subscriptions.Check(r.Context(), owner); err != nil {
		h.writeErr(w, err)
		return false
	}
	return true
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeBody(r, v); err != nil {
		h.writeErr(w, err)
		return false
	}
	return true
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter) {
	h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
}
