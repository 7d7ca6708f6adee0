package storage

import (
	"context"
	"errors"
	"time"

	"github.com/3ltranslate/legtrans/internal/models"
)

// DefaultHistoryLimit is used when List is called with limit <= 0
const DefaultHistoryLimit = 20

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidCode       = errors.New("invalid or already used activation code")
	ErrAlreadyRegistered = errors.New("translator already registered for this user")
	ErrMissingOwner      = errors.New("owner id required")
)

// History persists translation records per owner
type History interface {
	Save(ctx context.Context, rec models.TranslationRecord) (models.TranslationRecord, error)
	List(ctx context.Context, ownerID string, limit int) ([]models.TranslationRecord, error)
	Delete(ctx context.Context, ownerID, id string) error
	Clear(ctx context.Context, ownerID string) error
}

// Profiles stores user accounts and activation codes
type Profiles interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, p models.Profile) error
	CreateCode(ctx context.Context, code models.ActivationCode) (models.ActivationCode, error)
	// RedeemCode marks the code used and extends the user's subscription
	RedeemCode(ctx context.Context, userID, code string, now time.Time) (*models.Profile, error)
}

// TranslatorFilter narrows a directory listing
type TranslatorFilter struct {
	Query             string
	Wilaya            string
	IncludeUnverified bool
}

// Translators is the sworn translator directory
type Translators interface {
	CreateTranslator(ctx context.Context, t models.Translator) (models.Translator, error)
	ListTranslators(ctx context.Context, filter TranslatorFilter) ([]models.Translator, error)
}

// Store bundles every persistence concern
type Store interface {
	History
	Profiles
	Translators
	Close() error
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

// extendSubscription returns max(now, current) + days
func extendSubscription(current *time.Time, now time.Time, days int) time.Time {
	start := now
	if current != nil && current.After(now) {
		start = *current
	}
	return start.AddDate(0, 0, days)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
