package service

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"thumbgen/internal/config"
)

// SecretSource reads the latest version of a named secret.
type SecretSource interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretManagerService reads secrets from GCP Secret Manager.
type SecretManagerService struct {
	client    *secretmanager.Client
	projectID string
}

func NewSecretManagerService(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManagerService, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP secrets project ID is not set")
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &SecretManagerService{client: client, projectID: projectID}, nil
}

func (s *SecretManagerService) GetSecret(ctx context.Context, name string) (string, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name),
	}
	result, err := s.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return string(result.Payload.Data), nil
}

func (s *SecretManagerService) Close() error {
	return s.client.Close()
}

// ResolveConfigSecrets fills every empty secret setting from src. Secret names are the
// lower-kebab form of the env var, e.g. stripe-secret-key. Optional secrets that do not
// exist in the source are left empty.
func ResolveConfigSecrets(ctx context.Context, cfg *config.Config, src SecretSource, logger zerolog.Logger) error {
	targets := []struct {
		name     string
		field    *string
		optional bool
	}{
		{"stripe-secret-key", &cfg.StripeSecretKey, false},
		{"stripe-webhook-secret", &cfg.StripeWebhookSecret, false},
		{"identity-webhook-secret", &cfg.IdentityWebhookSecret, true},
		{"openrouter-api-key", &cfg.OpenRouterAPIKey, false},
		{"s3-secret-key", &cfg.S3SecretKey, cfg.S3Bucket == ""},
	}
	for _, t := range targets {
		if *t.field != "" {
			continue
		}
		v, err := src.GetSecret(ctx, t.name)
		if t.optional && status.Code(err) == codes.NotFound {
			logger.Debug().Str("secret", t.name).Msg("Optional secret not found, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("resolving secret %s: %w", t.name, err)
		}
		*t.field = v
		logger.Debug().Str("secret", t.name).Msg("Loaded secret from Secret Manager")
	}
	return nil
}
