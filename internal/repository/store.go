package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Store groups the repositories the services depend on.
type Store struct {
	Accounts        AccountRepository
	Thumbnails      ThumbnailRepository
	WebhookFailures WebhookFailureRepository
}

// NewPostgresStore wires every repository to the same pool.
func NewPostgresStore(pool *pgxpool.Pool, retry RetryPolicy) *Store {
	return &Store{
		Accounts:        NewAccountRepo(pool, retry),
		Thumbnails:      NewThumbnailRepo(pool),
		WebhookFailures: NewWebhookFailureRepo(pool),
	}
}

// NewMemoryStore returns a Store that keeps everything in process memory.
func NewMemoryStore() *Store {
	return &Store{
		Accounts:        NewMemoryAccountRepo(),
		Thumbnails:      NewMemoryThumbnailRepo(),
		WebhookFailures: NewMemoryWebhookFailureRepo(),
	}
}
