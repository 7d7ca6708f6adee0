package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
)

// Fetcher retrieves document images from remote URLs
type Fetcher struct {
	HTTPClient *http.Client
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch downloads imageURL and loads it as a Source
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) (*Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	// Read one byte past the limit so oversize bodies are detected
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	filename := path.Base(strings.SplitN(imageURL, "?", 2)[0])
	if filename == "" || filename == "/" || filename == "." {
		filename = "image.jpg"
	}

	src, err := Load(data, resp.Header.Get("Content-Type"), filename)
	if err != nil {
		return nil, err
	}

	slog.Info("Downloaded image", "url", imageURL, "bytes", len(data), "type", src.MIMEType)
	return src, nil
}
