package subscription

import (
	"errors"
	"testing"
	"time"

	"github.com/3ltranslate/legtrans/internal/models"
	"github.com/3ltranslate/legtrans/internal/storage"
)

func TestActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		profile *models.Profile
		want    bool
	}{
		{name: "nil profile", profile: nil, want: false},
		{name: "never subscribed", profile: &models.Profile{}, want: false},
		{name: "expired", profile: &models.Profile{SubscriptionExpiresAt: &past}, want: false},
		{name: "expires exactly now", profile: &models.Profile{SubscriptionExpiresAt: &now}, want: false},
		{name: "active", profile: &models.Profile{SubscriptionExpiresAt: &future}, want: true},
		{name: "admin", profile: &models.Profile{IsAdmin: true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Active(tt.profile, now); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRedeemThenCheck(t *testing.T) {
	ctx := t.Context()
	store := storage.NewMemory()
	svc := NewService(store)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if err := svc.Check(ctx, "alice"); !errors.Is(err, ErrInactive) {
		t.Errorf("Expected ErrInactive before redemption, got %v", err)
	}

	if _, err := store.CreateCode(ctx, models.ActivationCode{Code: "WELCOME", DurationDays: 7}); err != nil {
		t.Fatalf("CreateCode failed: %v", err)
	}
	p, err := svc.Redeem(ctx, "alice", "welcome")
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if !p.SubscriptionExpiresAt.Equal(now.AddDate(0, 0, 7)) {
		t.Errorf("Unexpected expiry %v", p.SubscriptionExpiresAt)
	}
	if err := svc.Check(ctx, "alice"); err != nil {
		t.Errorf("Expected active subscription, got %v", err)
	}

	now = now.AddDate(0, 0, 8)
	if err := svc.Check(ctx, "alice"); !errors.Is(err, ErrInactive) {
		t.Errorf("Expected ErrInactive after expiry, got %v", err)
	}

	if _, err := svc.Redeem(ctx, "bob", "welcome"); !errors.Is(err, storage.ErrInvalidCode) {
		t.Errorf("Expected ErrInvalidCode, got %v", err)
	}
}
