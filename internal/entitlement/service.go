// Package entitlement answers the two questions the stream relay asks before
// running the agent: is the user over their hourly message limit, and are
// they an active Pro subscriber.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/internal/storage"
	"github.com/eternisai/agent-stream/internal/tiers"
	"github.com/jonboulle/clockwork"
)

// Service checks rate limits and subscription state.
type Service struct {
	store   storage.EntitlementStore
	limiter RateLimiter
	tiers   tiers.Table
	clock   clockwork.Clock
	logger  *logger.Logger

	// Disabled skips rate limiting entirely.
	Disabled bool
}

// NewService creates an entitlement service. A nil table uses tiers.Configs.
func NewService(store storage.EntitlementStore, limiter RateLimiter, table tiers.Table, clock clockwork.Clock, log *logger.Logger) *Service {
	if table == nil {
		table = tiers.Configs
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:   store,
		limiter: limiter,
		tiers:   table,
		clock:   clock,
		logger:  log.WithComponent("entitlement"),
	}
}

// Tier returns the effective tier of a user. Users without a record, or
// with an expired Pro subscription, are on the free tier.
func (s *Service) Tier(ctx context.Context, userID string) (tiers.Tier, error) {
	ent, err := s.store.GetEntitlement(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return tiers.TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load entitlement: %w", err)
	}
	if ent.IsActivePro(s.clock.Now()) {
		return tiers.TierPro, nil
	}
	return tiers.TierFree, nil
}

// IsPro reports whether the user is an active Pro subscriber.
func (s *Service) IsPro(ctx context.Context, userID string) (bool, error) {
	tier, err := s.Tier(ctx, userID)
	if err != nil {
		return false, err
	}
	return tier == tiers.TierPro, nil
}

// IsFeatureAllowed reports whether the user's tier includes feature.
func (s *Service) IsFeatureAllowed(ctx context.Context, userID string, feature tiers.Feature) (bool, error) {
	tier, err := s.Tier(ctx, userID)
	if err != nil {
		return false, err
	}
	cfg, err := s.tiers.Get(tier)
	if err != nil {
		return false, err
	}
	return cfg.IsFeatureAllowed(feature), nil
}

// IsRateLimited records one message for the user and reports whether it
// exceeds the hourly limit of their tier. A limited message is not counted.
func (s *Service) IsRateLimited(ctx context.Context, userID string) (bool, error) {
	if s.Disabled || s.limiter == nil {
		return false, nil
	}

	tier, err := s.Tier(ctx, userID)
	if err != nil {
		return false, err
	}
	cfg, err := s.tiers.Get(tier)
	if err != nil {
		return false, err
	}
	if cfg.Unlimited() {
		return false, nil
	}

	allowed, err := s.limiter.Allow(ctx, "messages:"+userID, cfg.HourlyMessages, tiers.Window)
	if err != nil {
		return false, err
	}
	if !allowed {
		s.logger.WithContext(ctx).Info("hourly message limit reached",
			slog.String("user_id", userID),
			slog.String("tier", string(tier)),
			slog.Int("limit", cfg.HourlyMessages),
		)
	}
	return !allowed, nil
}

// LimitMessage is the user-facing text of a limit_exceeded event.
func (s *Service) LimitMessage(ctx context.Context, userID string) string {
	tier, err := s.Tier(ctx, userID)
	if err != nil {
		tier = tiers.TierFree
	}
	cfg, err := s.tiers.Get(tier)
	if err != nil || cfg.Unlimited() {
		return "You have reached your hourly message limit. Please try again later."
	}
	if tier == tiers.TierFree {
		return fmt.Sprintf("You have reached the limit of %d messages per hour. Upgrade to Pro for more.", cfg.HourlyMessages)
	}
	return fmt.Sprintf("You have reached the limit of %d messages per hour. Please try again later.", cfg.HourlyMessages)
}
