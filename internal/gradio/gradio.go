// Package gradio calls a hosted Gradio app (a Hugging Face Space) through its
// two-step /call API: submit the input, then read the result as server-sent events.
package gradio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/3ltranslate/legtrans/internal/providers"
)

const (
	DefaultSpace    = "3ltranslate/legaltranslator"
	DefaultEndpoint = "predict"
)

var ErrEmptyResult = errors.New("translation service returned no data")

// Client translates text by calling a Gradio endpoint
type Client struct {
	baseURL    string
	endpoint   string
	token      string
	httpClient *http.Client
}

// SpaceURL maps "owner/name" to its hf.space host
func SpaceURL(space string) string {
	host := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(space, "/", "-"), "_", "-"))
	host = strings.ReplaceAll(host, ".", "-")
	return "https://" + host + ".hf.space"
}

// New returns a client. baseURL may be a full URL or a Space id.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultSpace
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = SpaceURL(baseURL)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoint:   DefaultEndpoint,
		token:      token,
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

// Translate submits the text and returns the first output component
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	eventID, err := c.submit(ctx, text)
	if err != nil {
		return "", err
	}
	data, err := c.result(ctx, eventID)
	if err != nil {
		return "", err
	}
	return firstString(data)
}

func (c *Client) callURL() string {
	return c.baseURL + "/gradio_api/call/" + c.endpoint
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) submit(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]any{"data": []any{text}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.callURL(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit translation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", providers.NewStatusError(resp.StatusCode, string(body))
	}

	var out struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if out.EventID == "" {
		return "", errors.New("translation service returned no event id")
	}
	return out.EventID, nil
}

func (c *Client) result(ctx context.Context, eventID string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.callURL()+"/"+eventID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch translation result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, providers.NewStatusError(resp.StatusCode, string(body))
	}

	return readEvents(resp.Body)
}

// readEvents scans the SSE stream until a complete or error event
func readEvents(r io.Reader) (json.RawMessage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "complete":
				return json.RawMessage(data), nil
			case "error":
				if data == "" || data == "null" {
					data = "translation service reported an error"
				}
				return nil, errors.New(strings.Trim(data, `"`))
			}
		case line == "":
			event = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}
	return nil, errors.New("event stream ended without a result")
}

func firstString(data json.RawMessage) (string, error) {
	var outputs []any
	if err := json.Unmarshal(data, &outputs); err != nil {
		return "", fmt.Errorf("failed to decode translation output: %w", err)
	}
	if len(outputs) == 0 || outputs[0] == nil {
		return "", ErrEmptyResult
	}
	switch v := outputs[0].(type) {
	case string:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode translation output: %w", err)
		}
		return string(raw), nil
	}
}
