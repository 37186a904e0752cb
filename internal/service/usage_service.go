package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"thumbgen/internal/metrics"
	"thumbgen/internal/model"
	"thumbgen/internal/repository"
	"thumbgen/internal/tier"
)

// UsageService meters billable actions and answers usage queries.
type UsageService interface {
	// Consume records one unit of kind for the identity, or returns *QuotaExceededError.
	Consume(ctx context.Context, externalID string, kind tier.Resource) (*model.ConsumeResult, error)
	// GetUsage returns the identity's current usage view. It never writes.
	GetUsage(ctx context.Context, externalID string) (*model.UsageProjection, error)
}

type usageService struct {
	accounts   repository.AccountRepository
	clock      Clock
	upgradeURL string
	metrics    *metrics.Collector
	logger     zerolog.Logger
}

// NewUsageService creates a new UsageService with a scoped logger.
func NewUsageService(accounts repository.AccountRepository, clock Clock, upgradeURL string, m *metrics.Collector, logger zerolog.Logger) UsageService {
	return &usageService{
		accounts:   accounts,
		clock:      clock,
		upgradeURL: upgradeURL,
		metrics:    m,
		logger:     logger.With().Str("service", "UsageService").Logger(),
	}
}

func (s *usageService) Consume(ctx context.Context, externalID string, kind tier.Resource) (*model.ConsumeResult, error) {
	if !kind.Valid() {
		return nil, ErrInvalidResource
	}

	var result *model.ConsumeResult
	_, err := s.accounts.Update(ctx, repository.AccountByExternalID(externalID), func(a *model.Account) error {
		r, err := applyConsume(a, kind, s.clock.Now(), s.upgradeURL)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if q, ok := AsQuotaExceeded(err); ok {
			s.count(kind, metrics.OutcomeExceeded)
			s.logger.Info().
				Str("external_id", externalID).
				Str("kind", string(kind)).
				Int("used", q.Used).
				Int("limit", q.Limit).
				Msg("Usage limit reached")
			return nil, err
		}
		s.count(kind, metrics.OutcomeError)
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("external_id", externalID).Str("kind", string(kind)).Msg("Failed to consume usage")
		return nil, fmt.Errorf("consuming %s for identity %s: %w", kind, externalID, err)
	}

	s.count(kind, metrics.OutcomeSuccess)
	return result, nil
}

// applyConsume mutates a in place. An expired window restarts at 1 regardless of the
// previous count; otherwise the counter must be below the limit.
func applyConsume(a *model.Account, kind tier.Resource, now time.Time, upgradeURL string) (*model.ConsumeResult, error) {
	limit := tier.LimitsFor(a.Tier).For(kind)

	if model.WindowExpired(a.UsageResetDate, now) {
		a.SetUsed(kind, 1)
		a.UsageResetDate = &now
		return &model.ConsumeResult{Kind: kind, Used: 1, Limit: limit}, nil
	}

	used := a.Used(kind)
	if used >= limit {
		return nil, &QuotaExceededError{Kind: kind, Used: used, Limit: limit, UpgradeURL: upgradeURL}
	}
	a.SetUsed(kind, used+1)
	return &model.ConsumeResult{Kind: kind, Used: used + 1, Limit: limit}, nil
}

func (s *usageService) GetUsage(ctx context.Context, externalID string) (*model.UsageProjection, error) {
	now := s.clock.Now()
	a, err := s.accounts.Get(ctx, repository.AccountByExternalID(externalID))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return model.DefaultProjection(now), nil
		}
		s.logger.Error().Err(err).Str("external_id", externalID).Msg("Failed to fetch account for usage")
		return nil, fmt.Errorf("fetching usage for identity %s: %w", externalID, err)
	}
	return model.ProjectUsage(a, now), nil
}

func (s *usageService) count(kind tier.Resource, outcome string) {
	if s.metrics != nil {
		s.metrics.ConsumeTotal.WithLabelValues(string(kind), outcome).Inc()
	}
}
