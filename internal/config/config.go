// Package config resolves settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
	BackendScan   = "scan"

	TranslatorGradio = "gradio"
	TranslatorOpenAI = "openai"
)

type OCR struct {
	Backend       string        `yaml:"backend"`
	Models        []string      `yaml:"models"`
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       time.Duration `yaml:"backoff"`
	Language      string        `yaml:"language"`
	Prompt        string        `yaml:"prompt"`
	GeminiAPIKey  string        `yaml:"gemini_api_key"`
	OpenAIAPIKey  string        `yaml:"openai_api_key"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	OpenAIModel   string        `yaml:"openai_model"`
	OllamaURL     string        `yaml:"ollama_url"`
	OllamaModel   string        `yaml:"ollama_model"`
	ScanURL       string        `yaml:"scan_url"`
}

type Translation struct {
	Backend        string `yaml:"backend"`
	GradioSpace    string `yaml:"gradio_space"`
	HFToken        string `yaml:"hf_token"`
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
}

type Config struct {
	Port            string      `yaml:"port"`
	LogLevel        string      `yaml:"log_level"`
	DatabaseURL     string      `yaml:"database_url"`
	CredentialsFile string      `yaml:"credentials_file"`
	StaticDir       string      `yaml:"static_dir"`
	OCR             OCR         `yaml:"ocr"`
	Translation     Translation `yaml:"translation"`
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Port:      "8888",
		LogLevel:  "info",
		StaticDir: "static",
		OCR: OCR{
			Backend:    BackendGemini,
			MaxRetries: 3,
			Backoff:    2 * time.Second,
			Language:   "fra",
		},
		Translation: Translation{
			Backend:        TranslatorGradio,
			SourceLanguage: "fr",
			TargetLanguage: "ar",
		},
	}
}

// Load reads path (if non-empty) then applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
		slog.Debug("Loaded config file", "path", path)
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "LEGTRANS_PORT")
	setString(&c.LogLevel, "LEGTRANS_LOG_LEVEL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.CredentialsFile, "LEGTRANS_CREDENTIALS_FILE")
	setString(&c.StaticDir, "LEGTRANS_STATIC_DIR")

	setString(&c.OCR.Backend, "LEGTRANS_OCR_BACKEND")
	setString(&c.OCR.Language, "LEGTRANS_OCR_LANGUAGE")
	setString(&c.OCR.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.OCR.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.OCR.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.OCR.OpenAIModel, "OPENAI_MODEL")
	setString(&c.OCR.OllamaURL, "OLLAMA_HOST")
	setString(&c.OCR.OllamaURL, "OLLAMA_URL")
	setString(&c.OCR.OllamaModel, "OLLAMA_MODEL")
	setString(&c.OCR.ScanURL, "SCAN_URL")
	if v := os.Getenv("LEGTRANS_OCR_MODELS"); v != "" {
		c.OCR.Models = SplitList(v)
	}
	if v := os.Getenv("LEGTRANS_OCR_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LEGTRANS_OCR_MAX_RETRIES %q: %w", v, err)
		}
		c.OCR.MaxRetries = n
	}
	if v := os.Getenv("LEGTRANS_OCR_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LEGTRANS_OCR_BACKOFF %q: %w", v, err)
		}
		c.OCR.Backoff = d
	}

	setString(&c.Translation.Backend, "LEGTRANS_TRANSLATOR")
	setString(&c.Translation.GradioSpace, "GRADIO_SPACE")
	setString(&c.Translation.HFToken, "HF_TOKEN")
	return nil
}

// Validate rejects unknown backends and negative retry settings
func (c Config) Validate() error {
	var errs []error
	switch c.OCR.Backend {
	case BackendGemini, BackendOpenAI, BackendOllama, BackendScan:
	default:
		errs = append(errs, fmt.Errorf("unknown OCR backend %q", c.OCR.Backend))
	}
	switch c.Translation.Backend {
	case TranslatorGradio, TranslatorOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown translator %q", c.Translation.Backend))
	}
	if c.OCR.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.OCR.MaxRetries))
	}
	if c.OCR.Backoff < 0 {
		errs = append(errs, fmt.Errorf("backoff must not be negative, got %s", c.OCR.Backoff))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// SplitList splits a comma separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
