package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/3ltranslate/legtrans/internal/config"
	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/gemini"
	"github.com/3ltranslate/legtrans/internal/gradio"
	"github.com/3ltranslate/legtrans/internal/ocr"
	"github.com/3ltranslate/legtrans/internal/ollama"
	"github.com/3ltranslate/legtrans/internal/openai"
	"github.com/3ltranslate/legtrans/internal/providers"
	"github.com/3ltranslate/legtrans/internal/scan"
	"github.com/3ltranslate/legtrans/internal/storage"
	"github.com/3ltranslate/legtrans/internal/translation"
)

// services is everything a command needs, built from the config
type services struct {
	cfg         config.Config
	store       storage.Store
	keyring     *credentials.Keyring
	ocr         *ocr.Service
	translation *translation.Service
}

// ocrSetup is the chosen OCR backend and how it finds its API key
type ocrSetup struct {
	provider providers.OCRProvider
	// credentials serves the CLI: the stored key, then the environment
	credentials credentials.Provider
	// keyring serves API users their own keys before the shared ones; nil for
	// backends without keys
	keyring *credentials.Keyring
	models  []string
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		slog.Info("No DATABASE_URL set, using in-memory storage")
		return storage.NewMemory(), nil
	}
	return storage.NewPostgres(ctx, cfg.DatabaseURL)
}

// keyStore returns the on-disk store for the OCR backend's API key
func keyStore(cfg config.Config) *credentials.FileStore {
	path := cfg.CredentialsFile
	if path == "" {
		path = credentials.DefaultPath()
	}
	keyName := credentials.DefaultKeyName
	if cfg.OCR.Backend == config.BackendOpenAI {
		keyName = "openai_api_key"
	}
	return credentials.NewFileStore(path, keyName)
}

func newServices(ctx context.Context, cfg config.Config) (*services, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	setup, err := ocrBackend(cfg, keyStore(cfg))
	if err != nil {
		store.Close()
		return nil, err
	}
	s := &services{cfg: cfg, store: store, keyring: setup.keyring}
	s.ocr = ocr.NewService(setup.provider, setup.credentials, ocr.Options{
		Models:      setup.models,
		MaxRetries:  cfg.OCR.MaxRetries,
		BackoffBase: cfg.OCR.Backoff,
		Prompt:      cfg.OCR.Prompt,
		Language:    cfg.OCR.Language,
	})

	translator, err := translatorBackend(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	s.translation = translation.NewService(translator, store).
		WithLanguages(cfg.Translation.SourceLanguage, cfg.Translation.TargetLanguage)

	slog.Debug("Services ready", "ocr_backend", cfg.OCR.Backend, "models", setup.models, "translator", cfg.Translation.Backend)
	return s, nil
}

func (s *services) Close() error {
	return s.store.Close()
}

func ocrBackend(cfg config.Config, keys *credentials.FileStore) (ocrSetup, error) {
	models := cfg.OCR.Models
	switch cfg.OCR.Backend {
	case config.BackendGemini:
		env := credentials.NewStatic(cfg.OCR.GeminiAPIKey)
		if len(models) == 0 {
			models = gemini.DefaultModels
		}
		return ocrSetup{
			provider:    gemini.New(nil),
			credentials: credentials.NewChain(keys, env),
			keyring:     credentials.NewKeyring(keys, keys, env),
			models:      models,
		}, nil
	case config.BackendOpenAI:
		env := credentials.NewStatic(cfg.OCR.OpenAIAPIKey)
		if len(models) == 0 {
			models = []string{orDefault(cfg.OCR.OpenAIModel, openai.DefaultModel)}
		}
		return ocrSetup{
			provider:    openai.New(nil, cfg.OCR.OpenAIBaseURL, cfg.OCR.OpenAIModel),
			credentials: credentials.NewChain(keys, env),
			keyring:     credentials.NewKeyring(keys, keys, env),
			models:      models,
		}, nil
	case config.BackendOllama:
		if len(models) == 0 {
			models = []string{orDefault(cfg.OCR.OllamaModel, ollama.DefaultModel)}
		}
		return ocrSetup{provider: ollama.New(cfg.OCR.OllamaURL), models: models}, nil
	case config.BackendScan:
		if len(models) == 0 {
			models = []string{scan.DefaultModel}
		}
		return ocrSetup{provider: scan.New(cfg.OCR.ScanURL), models: models}, nil
	default:
		return ocrSetup{}, fmt.Errorf("unknown OCR backend %q", cfg.OCR.Backend)
	}
}

func translatorBackend(cfg config.Config) (providers.Translator, error) {
	switch cfg.Translation.Backend {
	case config.TranslatorGradio:
		return gradio.New(cfg.Translation.GradioSpace, cfg.Translation.HFToken), nil
	case config.TranslatorOpenAI:
		creds := credentials.NewStatic(cfg.OCR.OpenAIAPIKey)
		return openai.New(creds, cfg.OCR.OpenAIBaseURL, cfg.OCR.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown translator %q", cfg.Translation.Backend)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
