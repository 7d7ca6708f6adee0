package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/providers"
)

func TestExtractText(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Bonjour le monde"}}]}`))
	}))
	defer server.Close()

	o := New(credentials.NewStatic("sk-test"), server.URL+"/v1", "")
	text, err := o.ExtractText(t.Context(), providers.OCRRequest{
		Config:   providers.Config{Model: "gpt-4o-mini", Prompt: "extract"},
		Image:    []byte("png-bytes"),
		MIMEType: "image/png",
	})
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if text != "Bonjour le monde" {
		t.Errorf("Expected OCR text, got %q", text)
	}

	if body["model"] != "gpt-4o-mini" {
		t.Errorf("Expected model gpt-4o-mini, got %v", body["model"])
	}
	temp, ok := body["temperature"].(float64)
	if !ok || temp > 1e-6 {
		t.Errorf("Expected near-zero temperature, got %v", body["temperature"])
	}
	raw, _ := json.Marshal(body["messages"])
	if !strings.Contains(string(raw), "data:image/png;base64,") {
		t.Errorf("Expected inline data URL in messages, got %s", raw)
	}
}

func TestExtractTextStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	o := New(credentials.NewStatic("sk-test"), server.URL+"/v1", "")
	_, err := o.ExtractText(t.Context(), providers.OCRRequest{
		Config: providers.Config{Model: "gpt-4o"},
		Image:  []byte("x"),
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if got := providers.StatusCode(err); got != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d (%v)", got, err)
	}
}

func TestTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("Expected default model, got %s", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "Article premier" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" المادة الأولى \n"}}]}`))
	}))
	defer server.Close()

	o := New(credentials.NewStatic("sk-test"), server.URL+"/v1", "")
	out, err := o.Translate(t.Context(), "Article premier")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if out != "المادة الأولى" {
		t.Errorf("Expected trimmed translation, got %q", out)
	}
}
