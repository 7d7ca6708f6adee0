package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/3ltranslate/legtrans/internal/images"
)

type imageResponse struct {
	Filename string  `json:"filename"`
	MIMEType string  `json:"mime_type"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Factor   float64 `json:"factor"`
	DataURL  string  `json:"data_url"`
}

func (h *Handler) HandleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.methodNotAllowed(w)
		return
	}
	owner, ok := h.ownerOrError(w, r)
	if !ok {
		return
	}

	var (
		src *images.Source
		err error
	)
	// Check if this is a JSON request with image URL
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		src, err = h.loadFromURL(r)
	} else {
		src, err = h.loadFromForm(w, r)
	}
	if err != nil {
		h.writeErr(w, err)
		return
	}

	ws := h.workspaces.GetOrCreate(owner)
	if err := ws.LoadImage(src); err != nil {
		h.writeErr(w, err)
		return
	}

	h.writeJSON(w, imageResponse{
		Filename: src.Filename,
		MIMEType: src.MIMEType,
		Width:    src.Width,
		Height:   src.Height,
		Factor:   images.NeutralContrast,
		DataURL:  src.DataURL(),
	})
}

func (h *Handler) loadFromURL(r *http.Request) (*images.Source, error) {
	var request struct {
		ImageURL string `json:"image_url"`
	}
	if err := decodeBody(r, &request); err != nil {
		return nil, err
	}
	if request.ImageURL == "" {
		return nil, errBadRequest("image_url is required")
	}
	return h.fetcher.Fetch(r.Context(), request.ImageURL)
}

func (h *Handler) loadFromForm(w http.ResponseWriter, r *http.Request) (*images.Source, error) {
	r.Body = http.MaxBytesReader(w, r.Body, images.MaxImageSize+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		file, header, err = r.FormFile("file")
		if err != nil {
			return nil, errBadRequest("Failed to read file: " + err.Error())
		}
	}
	defer file.Close()

	// Read one byte past the limit so oversize files are detected
	data, err := io.ReadAll(io.LimitReader(file, images.MaxImageSize+1))
	if err != nil {
		return nil, errBadRequest("Failed to read file contents: " + err.Error())
	}
	return images.Load(data, header.Header.Get("Content-Type"), header.Filename)
}
