package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/3ltranslate/legtrans/internal/export"
)

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case "GET":
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				h.writeError(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		records, err := h.history.List(r.Context(), owner, limit)
		if err != nil {
			h.writeErr(w, err)
			return
		}

		if format := r.URL.Query().Get("format"); format != "" {
			var buf bytes.Buffer
			if err := export.Write(&buf, export.Format(format), owner, records); err != nil {
				h.writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			contentType := "application/yaml"
			if export.Format(format) == export.FormatParquet {
				contentType = "application/vnd.apache.parquet"
			}
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="history.%s"`, format))
			_, _ = w.Write(buf.Bytes())
			return
		}
		h.writeJSON(w, records)
	case "DELETE":
		if err := h.history.Clear(r.Context(), owner); err != nil {
			h.writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.methodNotAllowed(w)
	}
}

func (h *Handler) HandleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if id == "" {
		h.writeError(w, "Missing record id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case "DELETE":
		if err := h.history.Delete(r.Context(), owner, id); err != nil {
			h.writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.methodNotAllowed(w)
	}
}
