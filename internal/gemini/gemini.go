package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/providers"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultModels is the priority list used when none is configured
var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite"}

// Gemini is an OCR provider calling the Gemini API directly with a user API key
type Gemini struct {
	credentials credentials.Provider
	opts        []option.ClientOption
}

// New returns a new Gemini provider. Extra client options are appended after
// the API key, e.g. option.WithEndpoint for tests.
func New(creds credentials.Provider, opts ...option.ClientOption) *Gemini {
	return &Gemini{credentials: creds, opts: opts}
}

// ExtractText sends the prompt and the image inline to the model
func (g *Gemini) ExtractText(ctx context.Context, req providers.OCRRequest) (string, error) {
	creds := req.Credentials
	if creds == nil {
		creds = g.credentials
	}
	if creds == nil {
		return "", credentials.ErrMissing
	}
	apiKey, err := creds.Get(ctx)
	if err != nil {
		return "", err
	}

	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))

	resp, err := model.GenerateContent(ctx,
		genai.Text(req.Prompt),
		genai.Blob{MIMEType: req.MIMEType, Data: req.Image},
	)
	if err != nil {
		return "", wrapError(err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", nil
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return text.String(), nil
}

// wrapError keeps the HTTP status of API errors visible to classification
func wrapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &providers.StatusError{StatusCode: apiErr.Code, Err: err}
	}
	return fmt.Errorf("failed to generate content: %w", err)
}
