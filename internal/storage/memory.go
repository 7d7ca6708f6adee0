package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/3ltranslate/legtrans/internal/models"
)

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	history     map[string][]models.TranslationRecord
	profiles    map[string]*models.Profile
	codes       map[string]*models.ActivationCode
	translators []models.Translator
	mu          sync.RWMutex
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		history:  make(map[string][]models.TranslationRecord),
		profiles: make(map[string]*models.Profile),
		codes:    make(map[string]*models.ActivationCode),
	}
}

func (s *MemoryStore) Save(ctx context.Context, rec models.TranslationRecord) (models.TranslationRecord, error) {
	if rec.OwnerID == "" {
		return models.TranslationRecord{}, ErrMissingOwner
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[rec.OwnerID] = append(s.history[rec.OwnerID], rec)
	return rec, nil
}

func (s *MemoryStore) List(ctx context.Context, ownerID string, limit int) ([]models.TranslationRecord, error) {
	s.mu.RLock()
	records := slices.Clone(s.history[ownerID])
	s.mu.RUnlock()

	// insertion order breaks ties between equal timestamps
	slices.Reverse(records)
	slices.SortStableFunc(records, func(a, b models.TranslationRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	limit = limitOrDefault(limit)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.history[ownerID]
	idx := slices.IndexFunc(records, func(r models.TranslationRecord) bool { return r.ID == id })
	if idx < 0 {
		return ErrNotFound
	}
	s.history[ownerID] = slices.Delete(records, idx, idx+1)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, ownerID)
	return nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.profiles[userID]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpsertProfile(ctx context.Context, p models.Profile) error {
	if p.UserID == "" {
		return ErrMissingOwner
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.UserID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.profiles[p.UserID] = &p
	return nil
}

func (s *MemoryStore) CreateCode(ctx context.Context, code models.ActivationCode) (models.ActivationCode, error) {
	if err := validateCode(&code); err != nil {
		return models.ActivationCode{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.codes[code.Code]; exists {
		return models.ActivationCode{}, fmt.Errorf("activation code %s already exists", code.Code)
	}
	s.codes[code.Code] = &code
	return code, nil
}

func (s *MemoryStore) RedeemCode(ctx context.Context, userID, code string, now time.Time) (*models.Profile, error) {
	if userID == "" {
		return nil, ErrMissingOwner
	}
	code = normalizeCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.codes[code]
	if !exists || c.Status != models.CodeStatusUnused {
		return nil, ErrInvalidCode
	}

	p, exists := s.profiles[userID]
	if !exists {
		p = &models.Profile{UserID: userID, CreatedAt: now}
		s.profiles[userID] = p
	}
	expires := extendSubscription(p.SubscriptionExpiresAt, now, c.DurationDays)
	p.SubscriptionExpiresAt = &expires
	p.UpdatedAt = now

	usedAt := now
	c.Status = models.CodeStatusUsed
	c.UsedBy = userID
	c.UsedAt = &usedAt

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) CreateTranslator(ctx context.Context, t models.Translator) (models.Translator, error) {
	if err := validateTranslator(&t); err != nil {
		return models.Translator{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.translators {
		if existing.UserID == t.UserID {
			return models.Translator{}, ErrAlreadyRegistered
		}
	}
	t.ID = uuid.NewString()
	t.Verified = false
	t.CreatedAt = time.Now().UTC()
	s.translators = append(s.translators, t)
	return t, nil
}

// SetVerified flips the verification flag; admin tooling only
func (s *MemoryStore) SetVerified(id string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.translators {
		if s.translators[i].ID == id {
			s.translators[i].Verified = verified
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListTranslators(ctx context.Context, filter TranslatorFilter) ([]models.Translator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.Translator{}
	for i := len(s.translators) - 1; i >= 0; i-- {
		t := s.translators[i]
		if matchesTranslator(t, filter) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func matchesTranslator(t models.Translator, filter TranslatorFilter) bool {
	if !filter.IncludeUnverified && !t.Verified {
		return false
	}
	if filter.Wilaya != "" && !strings.EqualFold(t.Wilaya, filter.Wilaya) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(t.FullName()), q) {
		return true
	}
	for _, s := range t.Specialties {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}
