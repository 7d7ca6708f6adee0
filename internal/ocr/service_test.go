package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/providers"
)

type reply struct {
	text string
	err  error
}

// scriptedProvider answers each model from its own queue; the last reply repeats
type scriptedProvider struct {
	replies  map[string][]reply
	calls    map[string]int
	requests []providers.OCRRequest
}

func newScripted(replies map[string][]reply) *scriptedProvider {
	return &scriptedProvider{replies: replies, calls: map[string]int{}}
}

func (p *scriptedProvider) ExtractText(ctx context.Context, req providers.OCRRequest) (string, error) {
	p.requests = append(p.requests, req)
	queue := p.replies[req.Model]
	n := p.calls[req.Model]
	p.calls[req.Model]++
	if len(queue) == 0 {
		return "", errors.New("404 model not found")
	}
	if n >= len(queue) {
		n = len(queue) - 1
	}
	return queue[n].text, queue[n].err
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestService(p providers.OCRProvider, creds credentials.Provider, models ...string) (*Service, *sleepRecorder) {
	rec := &sleepRecorder{}
	svc := NewService(p, creds, Options{Models: models}).WithSleeper(rec.sleep)
	return svc, rec
}

var testImage = Request{Image: []byte("fake-image"), MIMEType: "image/png"}

func TestRateLimitBacksOffThenSucceeds(t *testing.T) {
	p := newScripted(map[string][]reply{
		"model-a": {
			{err: errors.New("[429 Too Many Requests] RESOURCE_EXHAUSTED")},
			{err: errors.New("[429 Too Many Requests] RESOURCE_EXHAUSTED")},
			{text: "Bonjour le monde"},
		},
		"model-b": {{text: "should not be used"}},
	})
	svc, rec := newTestService(p, nil, "model-a", "model-b")

	result, err := svc.Extract(t.Context(), testImage)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Model != "model-a" || result.Text != "Bonjour le monde" {
		t.Errorf("Expected model-a text, got %+v", result)
	}

	expected := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(rec.waits) != len(expected) {
		t.Fatalf("Expected %d waits, got %v", len(expected), rec.waits)
	}
	for i := range expected {
		if rec.waits[i] != expected[i] {
			t.Errorf("Wait %d: expected %v, got %v", i, expected[i], rec.waits[i])
		}
	}
	if p.calls["model-b"] != 0 {
		t.Errorf("Expected model-b untouched, got %d calls", p.calls["model-b"])
	}
	if len(result.Attempts) != 3 || result.Attempts[2].Outcome != OutcomeSuccess {
		t.Errorf("Unexpected attempt trace: %+v", result.Attempts)
	}
}

func TestConfiguredBackoffBase(t *testing.T) {
	p := newScripted(map[string][]reply{
		"m": {
			{err: errors.New("quota exceeded")},
			{err: errors.New("quota exceeded")},
			{err: errors.New("quota exceeded")},
			{text: "ok"},
		},
	})
	rec := &sleepRecorder{}
	svc := NewService(p, nil, Options{Models: []string{"m"}, MaxRetries: 4, BackoffBase: 500 * time.Millisecond}).WithSleeper(rec.sleep)

	if _, err := svc.Extract(t.Context(), testImage); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	expected := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	if len(rec.waits) != 3 {
		t.Fatalf("Expected 3 waits, got %v", rec.waits)
	}
	for i := range expected {
		if rec.waits[i] != expected[i] {
			t.Errorf("Wait %d: expected %v, got %v", i, expected[i], rec.waits[i])
		}
	}
}

func TestNotFoundFallsThroughImmediately(t *testing.T) {
	p := newScripted(map[string][]reply{
		"model-a": {{err: errors.New("googleapi: Error 404: models/model-a is not found for API version v1beta")}},
		"model-b": {{text: "texte"}},
	})
	svc, rec := newTestService(p, nil, "model-a", "model-b")

	result, err := svc.Extract(t.Context(), testImage)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Model != "model-b" {
		t.Errorf("Expected model-b, got %s", result.Model)
	}
	if p.calls["model-a"] != 1 {
		t.Errorf("Expected a single model-a attempt, got %d", p.calls["model-a"])
	}
	if len(rec.waits) != 0 {
		t.Errorf("Expected no backoff for not-found, got %v", rec.waits)
	}
}

func TestInvalidKeyClearsCredential(t *testing.T) {
	creds := credentials.NewStatic("bad-key")
	p := newScripted(map[string][]reply{
		"model-a": {{err: errors.New("invalid API key")}},
		"model-b": {{text: "never"}},
	})
	svc, rec := newTestService(p, creds, "model-a", "model-b")

	_, err := svc.Extract(t.Context(), testImage)
	var oe *Error
	if !errors.As(err, &oe) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if oe.Category != InvalidCredential {
		t.Errorf("Expected InvalidCredential, got %s", oe.Category)
	}
	if _, err := creds.Get(t.Context()); !errors.Is(err, credentials.ErrMissing) {
		t.Errorf("Expected credential cleared, got %v", err)
	}
	if p.calls["model-a"] != 1 || p.calls["model-b"] != 0 {
		t.Errorf("Expected one call total, got %v", p.calls)
	}
	if len(rec.waits) != 0 {
		t.Errorf("Expected no waits, got %v", rec.waits)
	}
}

func TestPermissionDeniedClearsCredential(t *testing.T) {
	creds := credentials.NewStatic("key")
	p := newScripted(map[string][]reply{
		"m": {{err: &providers.StatusError{StatusCode: 403, Err: errors.New("PERMISSION_DENIED: Generative Language API has not been used")}}},
	})
	svc, _ := newTestService(p, creds, "m")

	_, err := svc.Extract(t.Context(), testImage)
	if CategoryOf(err) != PermissionDenied {
		t.Fatalf("Expected PermissionDenied, got %v", err)
	}
	if _, err := creds.Get(t.Context()); !errors.Is(err, credentials.ErrMissing) {
		t.Errorf("Expected credential cleared, got %v", err)
	}
}

func TestRequestCredentialsOverrideService(t *testing.T) {
	shared := credentials.NewStatic("operator-key")
	own := credentials.NewStatic("user-key")
	p := newScripted(map[string][]reply{
		"m": {{err: providers.NewStatusError(400, "API key not valid. Please pass a valid API key.")}},
	})
	svc, _ := newTestService(p, shared, "m")

	req := testImage
	req.Credentials = own
	if _, err := svc.Extract(t.Context(), req); CategoryOf(err) != InvalidCredential {
		t.Fatalf("Expected InvalidCredential, got %v", err)
	}
	if len(p.requests) != 1 || p.requests[0].Credentials != own {
		t.Errorf("Expected the request credentials to reach the backend")
	}
	if _, err := own.Get(t.Context()); !errors.Is(err, credentials.ErrMissing) {
		t.Errorf("Expected the request key cleared, got %v", err)
	}
	if key, err := shared.Get(t.Context()); err != nil || key != "operator-key" {
		t.Errorf("Expected the service key untouched, got %q (%v)", key, err)
	}
}

func TestMissingCredentialIsInvalidCredential(t *testing.T) {
	p := newScripted(map[string][]reply{
		"m": {{err: credentials.ErrMissing}},
	})
	svc, _ := newTestService(p, credentials.NewStatic(""), "m")

	_, err := svc.Extract(t.Context(), testImage)
	if CategoryOf(err) != InvalidCredential {
		t.Errorf("Expected InvalidCredential, got %v", err)
	}
}

func TestRateLimitExhaustedAcrossModels(t *testing.T) {
	p := newScripted(map[string][]reply{
		"model-a": {{err: errors.New("429 RESOURCE_EXHAUSTED")}},
		"model-b": {{err: errors.New("429 RESOURCE_EXHAUSTED")}},
	})
	svc, rec := newTestService(p, nil, "model-a", "model-b")

	_, err := svc.Extract(t.Context(), testImage)
	var oe *Error
	if !errors.As(err, &oe) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if oe.Category != RateLimited {
		t.Errorf("Expected RateLimited, got %s", oe.Category)
	}
	if oe.Model != "model-b" {
		t.Errorf("Expected last model model-b, got %s", oe.Model)
	}
	if p.calls["model-a"] != 3 || p.calls["model-b"] != 3 {
		t.Errorf("Expected 3 attempts per model, got %v", p.calls)
	}
	// no wait after the final attempt of each model
	if len(rec.waits) != 4 {
		t.Errorf("Expected 4 waits, got %v", rec.waits)
	}
	if len(oe.Attempts) != 6 {
		t.Errorf("Expected 6 attempts in trace, got %d", len(oe.Attempts))
	}
}

func TestAllModelsUnavailable(t *testing.T) {
	p := newScripted(map[string][]reply{})
	svc, _ := newTestService(p, nil, "a", "b", "c")

	_, err := svc.Extract(t.Context(), testImage)
	if CategoryOf(err) != ModelUnavailable {
		t.Fatalf("Expected ModelUnavailable, got %v", err)
	}
	for _, m := range []string{"a", "b", "c"} {
		if p.calls[m] != 1 {
			t.Errorf("Expected one attempt for %s, got %d", m, p.calls[m])
		}
	}
}

func TestOtherErrorAborts(t *testing.T) {
	p := newScripted(map[string][]reply{
		"model-a": {{err: errors.New("internal server failure")}},
		"model-b": {{text: "never"}},
	})
	svc, _ := newTestService(p, nil, "model-a", "model-b")

	_, err := svc.Extract(t.Context(), testImage)
	var oe *Error
	if !errors.As(err, &oe) || oe.Category != UnknownError {
		t.Fatalf("Expected UnknownError, got %v", err)
	}
	if p.calls["model-b"] != 0 {
		t.Errorf("Expected abort before model-b, got %d calls", p.calls["model-b"])
	}
	if !strings.Contains(oe.Message(), "internal server failure") {
		t.Errorf("Expected raw message in user message, got %q", oe.Message())
	}
}

func TestEmptyTextIsNoTextFound(t *testing.T) {
	p := newScripted(map[string][]reply{
		"m": {{text: "   \n"}},
	})
	svc, rec := newTestService(p, nil, "m")

	_, err := svc.Extract(t.Context(), testImage)
	if CategoryOf(err) != NoTextFound {
		t.Fatalf("Expected NoTextFound, got %v", err)
	}
	if p.calls["m"] != 3 {
		t.Errorf("Expected 3 attempts, got %d", p.calls["m"])
	}
	if len(rec.waits) != 0 {
		t.Errorf("Expected no waits for empty text, got %v", rec.waits)
	}
}

func TestRequestsAreDeterministic(t *testing.T) {
	p := newScripted(map[string][]reply{"m": {{text: "```\nArticle 1\n```"}}})
	svc := NewService(p, nil, Options{Models: []string{"m"}, Language: "fra"})

	result, err := svc.Extract(t.Context(), testImage)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Text != "Article 1" {
		t.Errorf("Expected code fences stripped, got %q", result.Text)
	}

	req := p.requests[0]
	if req.Temperature != 0 {
		t.Errorf("Expected temperature 0, got %v", req.Temperature)
	}
	if req.Prompt != DefaultPrompt {
		t.Errorf("Expected default prompt, got %q", req.Prompt)
	}
	if req.MIMEType != "image/png" || req.Language != "fra" {
		t.Errorf("Unexpected request: %+v", req)
	}
}

func TestRequestModelsOverrideDefaults(t *testing.T) {
	p := newScripted(map[string][]reply{"custom": {{text: "ok"}}})
	svc, _ := newTestService(p, nil, "default")

	req := testImage
	req.Models = []string{"custom"}
	result, err := svc.Extract(t.Context(), req)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Model != "custom" || p.calls["default"] != 0 {
		t.Errorf("Expected only custom model to run, got %+v / %v", result, p.calls)
	}
}

func TestExtractValidation(t *testing.T) {
	svc, _ := newTestService(newScripted(nil), nil)
	if _, err := svc.Extract(t.Context(), Request{}); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Expected ErrEmptyImage, got %v", err)
	}
	if _, err := svc.Extract(t.Context(), testImage); !errors.Is(err, ErrNoModels) {
		t.Errorf("Expected ErrNoModels, got %v", err)
	}
}

func TestCancelledDuringBackoff(t *testing.T) {
	p := newScripted(map[string][]reply{"m": {{err: errors.New("429")}}})
	ctx, cancel := context.WithCancel(t.Context())
	svc := NewService(p, nil, Options{Models: []string{"m"}}).WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := svc.Extract(ctx, testImage)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if p.calls["m"] != 1 {
		t.Errorf("Expected to stop after first attempt, got %d", p.calls["m"])
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Expected cancelled sleep to return immediately")
	}
	if err := sleepContext(t.Context(), time.Millisecond); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}
