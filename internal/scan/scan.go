// Package scan talks to a self-hosted OCR service that accepts a multipart
// upload and answers {success, text, error}.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/3ltranslate/legtrans/internal/providers"
)

const (
	DefaultURL = "http://localhost:5000/scan"
	// DefaultModel is a placeholder identifier; the service picks its own model
	DefaultModel = "default"
)

// Client is an OCR provider for the remote scan service
type Client struct {
	url        string
	httpClient *http.Client
}

// New returns a scan service client
func New(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type response struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Error   string `json:"error"`
}

// ExtractText posts the image as the `image` form field
func (c *Client) ExtractText(ctx context.Context, req providers.OCRRequest) (string, error) {
	body, contentType, err := buildForm(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create scan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call scan service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read scan response: %w", err)
	}

	var result response
	if err := json.Unmarshal(raw, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", providers.NewStatusError(resp.StatusCode, string(raw))
		}
		return "", fmt.Errorf("failed to decode scan response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "scan service reported failure"
		}
		if resp.StatusCode != http.StatusOK {
			return "", &providers.StatusError{StatusCode: resp.StatusCode, Err: errors.New(msg)}
		}
		return "", errors.New(msg)
	}

	return result.Text, nil
}

func buildForm(req providers.OCRRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="`+filename(mimeType)+`"`)
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", fmt.Errorf("failed to write image part: %w", err)
	}

	if req.Language != "" {
		if err := w.WriteField("language", req.Language); err != nil {
			return nil, "", fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if req.Model != "" && req.Model != DefaultModel {
		if err := w.WriteField("model", req.Model); err != nil {
			return nil, "", fmt.Errorf("failed to write model field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func filename(mimeType string) string {
	ext := strings.TrimPrefix(mimeType, "image/")
	if ext == "jpeg" {
		ext = "jpg"
	}
	return "document." + ext
}
