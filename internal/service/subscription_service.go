package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"thumbgen/internal/model"
	"thumbgen/internal/pubsub"
	"thumbgen/internal/repository"
	"thumbgen/internal/tier"
)

// EventSubscriptionChanged is the account event type published after a billing transition.
const EventSubscriptionChanged = "account.subscription_changed"

// SubscriptionService applies billing-provider subscription transitions to accounts.
// Every transition overwrites the stored fields, so replaying an event converges.
type SubscriptionService interface {
	ApplyCheckoutCompleted(ctx context.Context, change model.SubscriptionChange) (*model.Account, error)
	ApplySubscriptionUpdated(ctx context.Context, change model.SubscriptionChange) (*model.Account, error)
	ApplySubscriptionCanceled(ctx context.Context, billingCustomerID string) (*model.Account, error)
	ApplyPaymentFailed(ctx context.Context, billingCustomerID string) (*model.Account, error)
}

type subscriptionService struct {
	accounts  repository.AccountRepository
	clock     Clock
	publisher pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
// Account events are skipped when topic is empty.
func NewSubscriptionService(accounts repository.AccountRepository, clock Clock, publisher pubsub.Publisher, topic string, logger zerolog.Logger) SubscriptionService {
	if publisher == nil {
		publisher = pubsub.NoopPublisher{}
	}
	return &subscriptionService{
		accounts:  accounts,
		clock:     clock,
		publisher: publisher,
		topic:     topic,
		logger:    logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

// resolveBillingAccount finds the account for a billing event: first by billing customer
// id, then by external identity id when the event carries one. The returned key always
// addresses the account by its primary id.
func (s *subscriptionService) resolveBillingAccount(ctx context.Context, billingCustomerID, externalID string) (repository.AccountKey, error) {
	if billingCustomerID != "" {
		a, err := s.accounts.Get(ctx, repository.AccountByBillingCustomerID(billingCustomerID))
		if err == nil {
			return repository.AccountByID(a.ID), nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return repository.AccountKey{}, err
		}
	}
	if externalID != "" {
		a, err := s.accounts.Get(ctx, repository.AccountByExternalID(externalID))
		if err != nil {
			return repository.AccountKey{}, err
		}
		return repository.AccountByID(a.ID), nil
	}
	return repository.AccountKey{}, ErrAccountNotFound
}

func (s *subscriptionService) ApplyCheckoutCompleted(ctx context.Context, change model.SubscriptionChange) (*model.Account, error) {
	key, err := s.resolveBillingAccount(ctx, change.BillingCustomerID, change.ExternalIdentityID)
	if err != nil {
		return nil, s.fail(err, "checkout.completed", change.BillingCustomerID)
	}
	return s.applyChange(ctx, key, change, "checkout.completed")
}

func (s *subscriptionService) ApplySubscriptionUpdated(ctx context.Context, change model.SubscriptionChange) (*model.Account, error) {
	key, err := s.resolveBillingAccount(ctx, change.BillingCustomerID, "")
	if err != nil {
		return nil, s.fail(err, "subscription.updated", change.BillingCustomerID)
	}
	return s.applyChange(ctx, key, change, "subscription.updated")
}

// applyChange overwrites the subscription fields and starts a fresh usage window.
func (s *subscriptionService) applyChange(ctx context.Context, key repository.AccountKey, change model.SubscriptionChange, transition string) (*model.Account, error) {
	now := s.clock.Now()
	a, err := s.accounts.Update(ctx, key, func(a *model.Account) error {
		a.BillingCustomerID = model.StringPtr(change.BillingCustomerID)
		a.BillingSubscriptionID = model.StringPtr(change.BillingSubscriptionID)
		a.Tier = change.Tier
		a.SubscriptionStatus = change.Status
		a.BillingCycle = change.BillingCycle
		a.CurrentPeriodEnd = change.CurrentPeriodEnd
		a.GenerationsUsed = 0
		a.DownloadsUsed = 0
		a.UsageResetDate = &now
		return nil
	})
	if err != nil {
		return nil, s.fail(err, transition, change.BillingCustomerID)
	}
	s.logger.Info().
		Str("transition", transition).
		Str("external_id", a.ExternalIdentityID).
		Str("billing_customer_id", change.BillingCustomerID).
		Str("tier", string(a.Tier)).
		Str("status", string(a.SubscriptionStatus)).
		Msg("Subscription applied")
	s.publishChanged(ctx, a)
	return a, nil
}

func (s *subscriptionService) ApplySubscriptionCanceled(ctx context.Context, billingCustomerID string) (*model.Account, error) {
	a, err := s.accounts.Update(ctx, repository.AccountByBillingCustomerID(billingCustomerID), func(a *model.Account) error {
		a.Tier = tier.Free
		a.SubscriptionStatus = model.StatusCanceled
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "subscription.canceled", billingCustomerID)
	}
	s.logger.Info().Str("external_id", a.ExternalIdentityID).Str("billing_customer_id", billingCustomerID).Msg("Subscription canceled")
	s.publishChanged(ctx, a)
	return a, nil
}

func (s *subscriptionService) ApplyPaymentFailed(ctx context.Context, billingCustomerID string) (*model.Account, error) {
	a, err := s.accounts.Update(ctx, repository.AccountByBillingCustomerID(billingCustomerID), func(a *model.Account) error {
		a.SubscriptionStatus = model.StatusPastDue
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "payment.failed", billingCustomerID)
	}
	s.logger.Warn().Str("external_id", a.ExternalIdentityID).Str("billing_customer_id", billingCustomerID).Msg("Subscription payment failed")
	s.publishChanged(ctx, a)
	return a, nil
}

func (s *subscriptionService) fail(err error, transition, billingCustomerID string) error {
	if errors.Is(err, ErrAccountNotFound) {
		s.logger.Warn().Str("transition", transition).Str("billing_customer_id", billingCustomerID).Msg("No account for billing event")
		return err
	}
	s.logger.Error().Err(err).Str("transition", transition).Str("billing_customer_id", billingCustomerID).Msg("Failed to apply billing event")
	return fmt.Errorf("applying %s for customer %s: %w", transition, billingCustomerID, err)
}

// publishChanged is best-effort; a publish failure never fails the transition.
func (s *subscriptionService) publishChanged(ctx context.Context, a *model.Account) {
	if s.topic == "" {
		return
	}
	payload, err := json.Marshal(model.AccountEvent{
		Type:               EventSubscriptionChanged,
		ExternalIdentityID: a.ExternalIdentityID,
		Tier:               a.EffectiveTier(),
		SubscriptionStatus: a.EffectiveStatus(),
		OccurredAt:         s.clock.Now(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode account event")
		return
	}
	if _, err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		s.logger.Error().Err(err).Str("external_id", a.ExternalIdentityID).Str("topic", s.topic).Msg("Failed to publish account event")
	}
}
