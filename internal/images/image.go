package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxImageSize is the upload limit for a single document image
const MaxImageSize = 10 * 1024 * 1024

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrEmptyImage      = errors.New("image is empty")
	ErrTooLarge        = errors.New("image too large (max 10MB)")
	// ErrDecode is returned when pixel data is needed but the bytes do not decode.
	ErrDecode        = errors.New("image could not be decoded")
	ErrInvalidFactor = errors.New("contrast factor out of range")
)

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// Image is an encoded image buffer
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// DataURL renders the image as a data: URL for previews
func (i *Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Source is the image the user supplied. It is never mutated; choosing a
// new file produces a new Source.
type Source struct {
	Image
	Filename string    `json:"filename"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Adjusted is a Source with a contrast factor applied
type Adjusted struct {
	Image
	Factor float64 `json:"factor"`
}

// Load validates the declared MIME type against the content and reads the
// image dimensions. Bytes that sniff as an image but fail to decode are kept;
// the failure surfaces as ErrDecode when pixels are needed.
func Load(data []byte, declaredType, filename string) (*Source, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return nil, ErrTooLarge
	}

	mimeType, err := resolveType(data, declaredType)
	if err != nil {
		return nil, err
	}

	src := &Source{
		Image: Image{
			Data:     data,
			MIMEType: mimeType,
		},
		Filename: filename,
		LoadedAt: time.Now(),
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		slog.Warn("Failed to get image dimensions", "filename", filename, "error", err)
		return src, nil
	}
	src.Width = cfg.Width
	src.Height = cfg.Height

	return src, nil
}

// resolveType prefers the sniffed content type and falls back to the
// declared one for formats the sniffer does not know (TIFF).
func resolveType(data []byte, declared string) (string, error) {
	declared = normalizeType(declared)
	sniffed := normalizeType(http.DetectContentType(data))

	switch {
	case supportedTypes[sniffed]:
		return sniffed, nil
	case sniffed == "application/octet-stream" && supportedTypes[declared]:
		return declared, nil
	case declared != "":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, declared)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, sniffed)
	}
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if idx := strings.Index(t, ";"); idx != -1 {
		t = strings.TrimSpace(t[:idx])
	}
	if t == "image/jpg" {
		return "image/jpeg"
	}
	return t
}
