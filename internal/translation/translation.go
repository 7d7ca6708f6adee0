package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/3ltranslate/legtrans/internal/models"
	"github.com/3ltranslate/legtrans/internal/providers"
	"github.com/3ltranslate/legtrans/internal/storage"
)

var (
	ErrEmptySource       = errors.New("source text is empty")
	ErrTranslationFailed = errors.New("translation failed")
	ErrPersistenceFailed = errors.New("failed to save translation")
)

// Result is a completed translation; Record is nil when nothing was saved
type Result struct {
	Translation string                    `json:"translation"`
	Record      *models.TranslationRecord `json:"record,omitempty"`
}

type Service struct {
	translator providers.Translator
	history    storage.History
	sourceLang string
	targetLang string
}

// NewService returns a translation service; history may be nil
func NewService(translator providers.Translator, history storage.History) *Service {
	return &Service{
		translator: translator,
		history:    history,
		sourceLang: models.DefaultSourceLanguage,
		targetLang: models.DefaultTargetLanguage,
	}
}

// WithLanguages overrides the language pair recorded in history
func (s *Service) WithLanguages(source, target string) *Service {
	if source != "" {
		s.sourceLang = source
	}
	if target != "" {
		s.targetLang = target
	}
	return s
}

// Translate calls the translator once. On a save failure the translation is
// still returned together with ErrPersistenceFailed.
func (s *Service) Translate(ctx context.Context, ownerID, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", ErrTranslationFailed, ErrEmptySource)
	}

	translated, err := s.translator.Translate(ctx, text)
	if err != nil {
		slog.Error("Translation request failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
	if strings.TrimSpace(translated) == "" {
		return nil, fmt.Errorf("%w: empty result", ErrTranslationFailed)
	}

	result := &Result{Translation: translated}
	if ownerID == "" || s.history == nil {
		return result, nil
	}

	rec, err := s.history.Save(ctx, models.TranslationRecord{
		OwnerID:        ownerID,
		SourceText:     text,
		TranslatedText: translated,
		SourceLanguage: s.sourceLang,
		TargetLanguage: s.targetLang,
	})
	if err != nil {
		slog.Error("Failed to save translation", "owner", ownerID, "err", err)
		return result, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	result.Record = &rec
	return result, nil
}
