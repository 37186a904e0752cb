package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"thumbgen/internal/model"
	"thumbgen/internal/repository"
)

// IdentityService keeps accounts in step with the identity provider's user lifecycle.
type IdentityService interface {
	// OnIdentityCreated creates a free-tier account. Returns ErrDuplicateIdentity if one exists.
	OnIdentityCreated(ctx context.Context, externalID string, profile model.Profile) (*model.Account, error)
	// OnIdentityUpdated patches the supplied profile fields only.
	OnIdentityUpdated(ctx context.Context, externalID string, profile model.Profile) (*model.Account, error)
	OnIdentityDeleted(ctx context.Context, externalID string) error
}

type identityService struct {
	accounts repository.AccountRepository
	logger   zerolog.Logger
}

func NewIdentityService(accounts repository.AccountRepository, logger zerolog.Logger) IdentityService {
	return &identityService{
		accounts: accounts,
		logger:   logger.With().Str("service", "IdentityService").Logger(),
	}
}

func (s *identityService) OnIdentityCreated(ctx context.Context, externalID string, profile model.Profile) (*model.Account, error) {
	a := &model.Account{
		ID:                 uuid.NewString(),
		ExternalIdentityID: externalID,
		Email:              profile.Email,
		Name:               profile.Name,
		ImageURL:           profile.ImageURL,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("external_id", externalID).Msg("Failed to create account")
		return nil, fmt.Errorf("creating account for identity %s: %w", externalID, err)
	}
	s.logger.Info().Str("external_id", externalID).Str("account_id", a.ID).Msg("Account created")
	return a, nil
}

func (s *identityService) OnIdentityUpdated(ctx context.Context, externalID string, profile model.Profile) (*model.Account, error) {
	a, err := s.accounts.Update(ctx, repository.AccountByExternalID(externalID), func(a *model.Account) error {
		if profile.Email != nil {
			a.Email = profile.Email
		}
		if profile.Name != nil {
			a.Name = profile.Name
		}
		if profile.ImageURL != nil {
			a.ImageURL = profile.ImageURL
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("external_id", externalID).Msg("Failed to update account profile")
		return nil, fmt.Errorf("updating account for identity %s: %w", externalID, err)
	}
	return a, nil
}

func (s *identityService) OnIdentityDeleted(ctx context.Context, externalID string) error {
	if err := s.accounts.Delete(ctx, repository.AccountByExternalID(externalID)); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return err
		}
		s.logger.Error().Err(err).Str("external_id", externalID).Msg("Failed to delete account")
		return fmt.Errorf("deleting account for identity %s: %w", externalID, err)
	}
	s.logger.Info().Str("external_id", externalID).Msg("Account deleted")
	return nil
}
