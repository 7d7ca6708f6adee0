package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/providers"
	goopenai "github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o"

// TranslationPrompt instructs the model to act as a French to Arabic legal translator
const TranslationPrompt = `You are a sworn legal translator. Translate the French legal text provided by the user into Modern Standard Arabic.
Keep the legal terminology precise, preserve article numbering, paragraph breaks and proper names.
Output only the translation, without comments or explanations.`

// OpenAI is a provider for OpenAI-compatible chat completion APIs
type OpenAI struct {
	credentials credentials.Provider
	baseURL     string
	model       string
}

// New returns a new OpenAI provider. An empty baseURL uses api.openai.com;
// model is only used for translation, OCR takes the model per request.
func New(creds credentials.Provider, baseURL, model string) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{credentials: creds, baseURL: baseURL, model: model}
}

func (o *OpenAI) client(ctx context.Context, creds credentials.Provider) (*goopenai.Client, error) {
	if creds == nil {
		creds = o.credentials
	}
	if creds == nil {
		return nil, credentials.ErrMissing
	}
	apiKey, err := creds.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	return goopenai.NewClientWithConfig(cfg), nil
}

// ExtractText runs OCR through a vision-capable chat model
func (o *OpenAI) ExtractText(ctx context.Context, req providers.OCRRequest) (string, error) {
	client, err := o.client(ctx, req.Credentials)
	if err != nil {
		return "", err
	}

	dataURL := "data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	resp, err := client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{Type: goopenai.ChatMessagePartTypeText, Text: req.Prompt},
					{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: goopenai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		MaxTokens:   2000,
		Temperature: temperature(req.Temperature),
	})
	if err != nil {
		return "", wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no OCR response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

// Translate sends text through the legal translation prompt
func (o *OpenAI) Translate(ctx context.Context, text string) (string, error) {
	client, err := o.client(ctx, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: o.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: TranslationPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: text},
		},
		Temperature: temperature(0),
	})
	if err != nil {
		return "", wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// temperature maps 0 to the smallest positive value; the client drops a
// literal zero from the request body.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func wrapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &providers.StatusError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &providers.StatusError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("failed to call OpenAI: %w", err)
}
