package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"thumbgen/internal/metrics"
	"thumbgen/internal/model"
	"thumbgen/internal/repository"
	"thumbgen/internal/tier"
)

const (
	thumbnailTitleRunes = 50
	thumbnailListLimit  = 100
	promptSuffix        = ". High quality YouTube thumbnail, professional, eye-catching, vibrant colors, detailed composition"
)

// GenerateInput is a thumbnail generation request.
type GenerateInput struct {
	Prompt          string
	Model           string
	Width           int
	Height          int
	ReferenceImages []string
}

type GenerateResult struct {
	Thumbnail *model.Thumbnail
	Prompt    string
	Model     string
	Usage     *model.ConsumeResult
}

type DownloadResult struct {
	URL   string
	Usage *model.ConsumeResult
}

// ThumbnailService generates, lists and serves thumbnails. Generation and download are metered.
type ThumbnailService interface {
	Generate(ctx context.Context, externalID string, in GenerateInput) (*GenerateResult, error)
	List(ctx context.Context, externalID string) ([]model.Thumbnail, error)
	Delete(ctx context.Context, externalID, id string) error
	Download(ctx context.Context, externalID, id string) (*DownloadResult, error)
}

type thumbnailService struct {
	repo         repository.ThumbnailRepository
	usage        UsageService
	provider     ImageProvider
	store        ImageStore
	defaultModel string
	timeout      time.Duration
	metrics      *metrics.Collector
	logger       zerolog.Logger
}

func NewThumbnailService(repo repository.ThumbnailRepository, usage UsageService, provider ImageProvider, store ImageStore, defaultModel string, timeout time.Duration, m *metrics.Collector, logger zerolog.Logger) ThumbnailService {
	return &thumbnailService{
		repo:         repo,
		usage:        usage,
		provider:     provider,
		store:        store,
		defaultModel: defaultModel,
		timeout:      timeout,
		metrics:      m,
		logger:       logger.With().Str("service", "ThumbnailService").Logger(),
	}
}

// Generate consumes one generation before calling the provider. The unit is not given back
// when the provider fails.
func (s *thumbnailService) Generate(ctx context.Context, externalID string, in GenerateInput) (*GenerateResult, error) {
	usage, err := s.usage.Consume(ctx, externalID, tier.Generation)
	if err != nil {
		return nil, err
	}

	modelName := in.Model
	if modelName == "" {
		modelName = s.defaultModel
	}
	prompt := in.Prompt + promptSuffix

	genCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	imageURL, err := s.provider.Generate(genCtx, model.ImageRequest{
		Prompt:          prompt,
		Model:           modelName,
		AspectRatio:     AspectRatioFor(in.Width, in.Height),
		ReferenceImages: in.ReferenceImages,
	})
	s.observeGeneration(start, err)
	if err != nil {
		s.logger.Error().Err(err).Str("external_id", externalID).Str("model", modelName).Msg("Image generation failed")
		return nil, fmt.Errorf("generating image: %w", err)
	}

	id := uuid.NewString()
	storedURL, storageKey, err := s.store.Save(ctx, fmt.Sprintf("thumbnails/%s/%s", externalID, id), imageURL)
	if err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}

	t := &model.Thumbnail{
		ID:                 id,
		ExternalIdentityID: externalID,
		Title:              truncateRunes(in.Prompt, thumbnailTitleRunes),
		ImageURL:           storedURL,
		StorageKey:         storageKey,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		s.logger.Error().Err(err).Str("external_id", externalID).Msg("Failed to save thumbnail")
		return nil, err
	}
	if err := s.resolveURL(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info().Str("external_id", externalID).Str("thumbnail_id", id).Str("model", modelName).Msg("Thumbnail generated")
	return &GenerateResult{Thumbnail: t, Prompt: prompt, Model: modelName, Usage: usage}, nil
}

func (s *thumbnailService) List(ctx context.Context, externalID string) ([]model.Thumbnail, error) {
	list, err := s.repo.ListByOwner(ctx, externalID, thumbnailListLimit)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if err := s.resolveURL(ctx, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *thumbnailService) Delete(ctx context.Context, externalID, id string) error {
	t, err := s.repo.DeleteForOwner(ctx, id, externalID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, t.StorageKey); err != nil {
		s.logger.Warn().Err(err).Str("thumbnail_id", id).Msg("Failed to delete stored image")
	}
	return nil
}

// Download checks ownership before consuming a download, so a missing thumbnail costs nothing.
func (s *thumbnailService) Download(ctx context.Context, externalID, id string) (*DownloadResult, error) {
	t, err := s.repo.GetForOwner(ctx, id, externalID)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.Consume(ctx, externalID, tier.Download)
	if err != nil {
		return nil, err
	}
	url, err := s.store.DownloadURL(ctx, t)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{URL: url, Usage: usage}, nil
}

func (s *thumbnailService) resolveURL(ctx context.Context, t *model.Thumbnail) error {
	if t.StorageKey == "" {
		return nil
	}
	url, err := s.store.DownloadURL(ctx, t)
	if err != nil {
		return err
	}
	t.ImageURL = url
	return nil
}

func (s *thumbnailService) observeGeneration(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
	}
	s.metrics.GenerationDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
