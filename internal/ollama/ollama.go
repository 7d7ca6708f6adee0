package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/3ltranslate/legtrans/internal/providers"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "mistral-small3.2:24b"
)

// Ollama is a provider for a local Ollama server
type Ollama struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a new Ollama provider
func New(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Ollama{baseURL: baseURL, httpClient: &http.Client{}}
}

// ExtractText sends the image to /api/generate with the prompt
func (o *Ollama) ExtractText(ctx context.Context, req providers.OCRRequest) (string, error) {
	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  req.Model,
		"prompt": req.Prompt,
		"images": []string{base64.StdEncoding.EncodeToString(req.Image)},
		"stream": false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", providers.NewStatusError(resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return response.Response, nil
}
