package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/3ltranslate/legtrans/internal/models"
	"github.com/3ltranslate/legtrans/internal/storage"
)

var ErrInactive = errors.New("an active subscription is required")

// Active reports whether the profile may use OCR and translation at now
func Active(p *models.Profile, now time.Time) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin {
		return true
	}
	return p.SubscriptionExpiresAt != nil && p.SubscriptionExpiresAt.After(now)
}

// Service gates access and redeems activation codes
type Service struct {
	profiles storage.Profiles
	now      func() time.Time
}

func NewService(profiles storage.Profiles) *Service {
	return &Service{profiles: profiles, now: time.Now}
}

// Profile returns the user's profile, or an empty one when none exists yet
func (s *Service) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.Profile{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// Check returns ErrInactive unless the user has an active subscription
func (s *Service) Check(ctx context.Context, userID string) error {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !Active(p, s.now()) {
		return ErrInactive
	}
	return nil
}

func (s *Service) Redeem(ctx context.Context, userID, code string) (*models.Profile, error) {
	p, err := s.profiles.RedeemCode(ctx, userID, code, s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCode) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to redeem activation code: %w", err)
	}
	slog.Info("Activation code redeemed", "user", userID, "expires", p.SubscriptionExpiresAt)
	return p, nil
}
