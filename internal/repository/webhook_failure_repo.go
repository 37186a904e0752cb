package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"thumbgen/internal/model"
)

// WebhookFailureRepository keeps an audit trail of webhook deliveries that failed to apply.
type WebhookFailureRepository interface {
	Create(ctx context.Context, f *model.WebhookFailure) error
}

type webhookFailureRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookFailureRepo(pool *pgxpool.Pool) WebhookFailureRepository {
	return &webhookFailureRepo{pool: pool}
}

func (r *webhookFailureRepo) Create(ctx context.Context, f *model.WebhookFailure) error {
	const q = `
		INSERT INTO webhook_failures (id, source, event_id, event_type, payload, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, q, f.ID, f.Source, f.EventID, f.EventType, f.Payload, f.Error).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording %s webhook failure %s: %w", f.Source, f.EventID, err)
	}
	return nil
}
