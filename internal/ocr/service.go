package ocr

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/providers"
	"github.com/cenkalti/backoff/v4"
)

// DefaultPrompt is the fixed extraction prompt sent with every image
const DefaultPrompt = `Extract all text from this image exactly as it appears.
Preserve line breaks, capitalization, punctuation and accents.
Do not add any comments, explanations or markdown formatting.
Output only the extracted text.`

const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 2 * time.Second
)

// Options configures the retry loop
type Options struct {
	// Models are tried in priority order
	Models      []string
	MaxRetries  int
	BackoffBase time.Duration
	Prompt      string
	Language    string
}

// Request is one OCR job
type Request struct {
	Image    []byte
	MIMEType string
	// Models overrides Options.Models when non-empty
	Models   []string
	Language string
	// Credentials replaces the service's provider for this job, e.g. the
	// requesting user's own key
	Credentials credentials.Provider
}

// Outcome of a single attempt
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient"
	OutcomeTerminal  Outcome = "terminal"
)

// Attempt is one backend invocation in the trace
type Attempt struct {
	Model   string        `json:"model"`
	Number  int           `json:"attempt"`
	Outcome Outcome       `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
	Wait    time.Duration `json:"wait,omitempty"`
}

// Result is a successful extraction
type Result struct {
	Text     string    `json:"text"`
	Model    string    `json:"model"`
	Attempts []Attempt `json:"attempts"`
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Service runs an image through the configured models, retrying rate limits
// with exponential backoff and moving on when a model is unavailable.
type Service struct {
	provider    providers.OCRProvider
	credentials credentials.Provider
	opts        Options
	sleep       Sleeper
}

// NewService creates an OCR service. creds may be nil for backends without keys.
func NewService(provider providers.OCRProvider, creds credentials.Provider, opts Options) *Service {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	return &Service{
		provider:    provider,
		credentials: creds,
		opts:        opts,
		sleep:       sleepContext,
	}
}

// WithSleeper replaces the backoff wait, mainly for tests
func (s *Service) WithSleeper(fn Sleeper) *Service {
	s.sleep = fn
	return s
}

// Models returns the default model priority list
func (s *Service) Models() []string {
	return append([]string(nil), s.opts.Models...)
}

type action int

const (
	actSucceed action = iota
	actRetryNow
	actRetryAfter
	actNextModel
	actAbort
)

type step struct {
	action   action
	delay    time.Duration
	category Category
}

// decide turns the result of one attempt into the next step of the loop
func decide(text string, err error, attempt, maxRetries int, b backoff.BackOff) step {
	if err == nil {
		if strings.TrimSpace(text) != "" {
			return step{action: actSucceed}
		}
		if attempt >= maxRetries {
			return step{action: actNextModel}
		}
		return step{action: actRetryNow}
	}

	category := classifyErr(err)
	switch category {
	case RateLimited:
		if attempt >= maxRetries {
			return step{action: actNextModel, category: category}
		}
		return step{action: actRetryAfter, delay: b.NextBackOff(), category: category}
	case ModelUnavailable:
		return step{action: actNextModel, category: category}
	default:
		return step{action: actAbort, category: category}
	}
}

func classifyErr(err error) Category {
	if errors.Is(err, credentials.ErrMissing) {
		return InvalidCredential
	}
	return Classify(err.Error(), providers.StatusCode(err))
}

// Extract returns the text of the first model that produces any. Transient
// failures are absorbed; only the final outcome is returned.
func (s *Service) Extract(ctx context.Context, req Request) (*Result, error) {
	if len(req.Image) == 0 {
		return nil, ErrEmptyImage
	}
	models := req.Models
	if len(models) == 0 {
		models = s.opts.Models
	}
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	language := req.Language
	if language == "" {
		language = s.opts.Language
	}
	creds := req.Credentials
	if creds == nil {
		creds = s.credentials
	}

	var (
		attempts  []Attempt
		lastErr   error
		lastModel string
	)

	for _, model := range models {
		slog.Info("Trying OCR model", "model", model)
		b := s.newBackOff()

	retries:
		for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
			text, err := s.provider.ExtractText(ctx, providers.OCRRequest{
				Config: providers.Config{
					Model:       model,
					Temperature: 0,
					Prompt:      s.opts.Prompt,
				},
				Image:       req.Image,
				MIMEType:    req.MIMEType,
				Language:    language,
				Credentials: creds,
			})
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			text = providers.StripCodeFences(text)

			st := decide(text, err, attempt, s.opts.MaxRetries, b)
			a := Attempt{Model: model, Number: attempt}

			switch st.action {
			case actSucceed:
				a.Outcome = OutcomeSuccess
				attempts = append(attempts, a)
				slog.Info("OCR succeeded", "model", model, "attempt", attempt, "length", len(text))
				return &Result{Text: text, Model: model, Attempts: attempts}, nil

			case actRetryNow:
				a.Outcome = OutcomeTransient
				a.Reason = "empty response"
				attempts = append(attempts, a)
				slog.Warn("OCR returned no text", "model", model, "attempt", attempt)

			case actRetryAfter:
				lastErr, lastModel = err, model
				a.Outcome = OutcomeTransient
				a.Reason = err.Error()
				a.Wait = st.delay
				attempts = append(attempts, a)
				slog.Warn("OCR rate limited, backing off", "model", model, "attempt", attempt, "max_retries", s.opts.MaxRetries, "wait", st.delay)
				if err := s.sleep(ctx, st.delay); err != nil {
					return nil, err
				}

			case actNextModel:
				a.Outcome = OutcomeTransient
				if err != nil {
					lastErr, lastModel = err, model
					a.Reason = err.Error()
				} else {
					a.Reason = "empty response"
				}
				attempts = append(attempts, a)
				slog.Warn("Moving to next OCR model", "model", model, "attempt", attempt, "category", st.category)
				break retries

			case actAbort:
				a.Outcome = OutcomeTerminal
				a.Reason = err.Error()
				attempts = append(attempts, a)
				return nil, s.fail(ctx, creds, st.category, model, err, attempts)
			}
		}
	}

	if lastErr == nil {
		return nil, &Error{Category: NoTextFound, Raw: "no text detected", Attempts: attempts}
	}
	return nil, s.fail(ctx, creds, classifyErr(lastErr), lastModel, lastErr, attempts)
}

func (s *Service) fail(ctx context.Context, creds credentials.Provider, category Category, model string, err error, attempts []Attempt) error {
	if category.InvalidatesCredential() && creds != nil {
		if invErr := creds.Invalidate(ctx); invErr != nil {
			slog.Error("Failed to invalidate rejected credential", "err", invErr)
		} else {
			slog.Warn("Credential rejected by OCR provider, cleared", "category", category)
		}
	}
	slog.Error("OCR failed", "category", category, "model", model, "attempts", len(attempts), "err", err)
	return &Error{
		Category: category,
		Model:    model,
		Raw:      err.Error(),
		Attempts: attempts,
		Err:      err,
	}
}

func (s *Service) newBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.opts.BackoffBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         s.opts.BackoffBase << uint(s.opts.MaxRetries),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
