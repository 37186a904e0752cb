package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thumbgen/internal/model"
)

// ErrThumbnailNotFound is returned when a thumbnail does not exist or belongs to someone else.
var ErrThumbnailNotFound = errors.New("thumbnail_not_found")

// ThumbnailRepository stores generated thumbnails.
type ThumbnailRepository interface {
	Create(ctx context.Context, t *model.Thumbnail) error
	// ListByOwner returns the owner's thumbnails, newest first.
	ListByOwner(ctx context.Context, externalID string, limit int) ([]model.Thumbnail, error)
	// GetForOwner returns ErrThumbnailNotFound unless the thumbnail exists and is owned by externalID.
	GetForOwner(ctx context.Context, id, externalID string) (*model.Thumbnail, error)
	DeleteForOwner(ctx context.Context, id, externalID string) (*model.Thumbnail, error)
}

type thumbnailRepo struct {
	pool *pgxpool.Pool
}

func NewThumbnailRepo(pool *pgxpool.Pool) ThumbnailRepository {
	return &thumbnailRepo{pool: pool}
}

func (r *thumbnailRepo) Create(ctx context.Context, t *model.Thumbnail) error {
	const q = `
		INSERT INTO thumbnails (id, external_identity_id, title, image_url, storage_key, votes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, q, t.ID, t.ExternalIdentityID, t.Title, t.ImageURL, t.StorageKey, t.Votes).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting thumbnail for identity %s: %w", t.ExternalIdentityID, err)
	}
	return nil
}

func (r *thumbnailRepo) ListByOwner(ctx context.Context, externalID string, limit int) ([]model.Thumbnail, error) {
	const q = `
		SELECT id, external_identity_id, title, image_url, storage_key, votes, created_at
		FROM thumbnails
		WHERE external_identity_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, externalID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing thumbnails for identity %s: %w", externalID, err)
	}
	defer rows.Close()

	var out []model.Thumbnail
	for rows.Next() {
		var t model.Thumbnail
		if err := rows.Scan(&t.ID, &t.ExternalIdentityID, &t.Title, &t.ImageURL, &t.StorageKey, &t.Votes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning thumbnail for identity %s: %w", externalID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thumbnails for identity %s: %w", externalID, err)
	}
	return out, nil
}

func (r *thumbnailRepo) GetForOwner(ctx context.Context, id, externalID string) (*model.Thumbnail, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrThumbnailNotFound
	}
	const q = `
		SELECT id, external_identity_id, title, image_url, storage_key, votes, created_at
		FROM thumbnails
		WHERE id = $1 AND external_identity_id = $2
	`
	var t model.Thumbnail
	err := r.pool.QueryRow(ctx, q, id, externalID).Scan(&t.ID, &t.ExternalIdentityID, &t.Title, &t.ImageURL, &t.StorageKey, &t.Votes, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrThumbnailNotFound
		}
		return nil, fmt.Errorf("fetching thumbnail %s: %w", id, err)
	}
	return &t, nil
}

func (r *thumbnailRepo) DeleteForOwner(ctx context.Context, id, externalID string) (*model.Thumbnail, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrThumbnailNotFound
	}
	const q = `
		DELETE FROM thumbnails
		WHERE id = $1 AND external_identity_id = $2
		RETURNING id, external_identity_id, title, image_url, storage_key, votes, created_at
	`
	var t model.Thumbnail
	err := r.pool.QueryRow(ctx, q, id, externalID).Scan(&t.ID, &t.ExternalIdentityID, &t.Title, &t.ImageURL, &t.StorageKey, &t.Votes, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrThumbnailNotFound
		}
		return nil, fmt.Errorf("deleting thumbnail %s: %w", id, err)
	}
	return &t, nil
}
