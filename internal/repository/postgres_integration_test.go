//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"thumbgen/internal/model"
	"thumbgen/internal/tier"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	if _, err := testcontainers.ProviderDocker.GetProvider(); err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("thumbgen_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations must be idempotent")
	return pool
}

func TestAccountRepo_Postgres(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := NewAccountRepo(pool, DefaultRetryPolicy)

	id := uuid.NewString()
	require.NoError(t, repo.Create(ctx, &model.Account{ID: id, ExternalIdentityID: "user_pg"}))

	err := repo.Create(ctx, &model.Account{ID: uuid.NewString(), ExternalIdentityID: "user_pg"})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	got, err := repo.Get(ctx, AccountByExternalID("user_pg"))
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, tier.Tier(""), got.Tier)
	assert.Nil(t, got.UsageResetDate)

	t.Run("concurrent updates serialize", func(t *testing.T) {
		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Update(ctx, AccountByID(id), func(a *model.Account) error {
					a.DownloadsUsed++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.Get(ctx, AccountByID(id))
		require.NoError(t, err)
		assert.Equal(t, workers, got.DownloadsUsed)
	})

	t.Run("billing customer lookup", func(t *testing.T) {
		_, err := repo.Update(ctx, AccountByID(id), func(a *model.Account) error {
			a.BillingCustomerID = model.StringPtr("cus_pg")
			a.Tier = tier.Pro
			a.BillingCycle = model.CycleYearly
			return nil
		})
		require.NoError(t, err)

		got, err := repo.Get(ctx, AccountByBillingCustomerID("cus_pg"))
		require.NoError(t, err)
		assert.Equal(t, tier.Pro, got.Tier)
		assert.Equal(t, model.CycleYearly, got.BillingCycle)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, AccountByExternalID("user_pg")))
		_, err := repo.Get(ctx, AccountByID(id))
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestThumbnailRepo_Postgres(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := NewThumbnailRepo(pool)

	th := &model.Thumbnail{ID: uuid.NewString(), ExternalIdentityID: "user_pg", Title: "t", ImageURL: "https://x/y.png"}
	require.NoError(t, repo.Create(ctx, th))
	assert.False(t, th.CreatedAt.IsZero())

	list, err := repo.ListByOwner(ctx, "user_pg", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.GetForOwner(ctx, th.ID, "someone_else")
	assert.ErrorIs(t, err, ErrThumbnailNotFound)

	_, err = repo.DeleteForOwner(ctx, th.ID, "user_pg")
	require.NoError(t, err)
}

func TestThumbnailRepo_PostgresMalformedID(t *testing.T) {
	pool := setupPostgres(t)
	_, err := NewThumbnailRepo(pool).GetForOwner(context.Background(), "not-a-uuid", "user_pg")
	assert.ErrorIs(t, err, ErrThumbnailNotFound)
}

func TestWebhookFailureRepo_Postgres(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := NewWebhookFailureRepo(pool)

	f := &model.WebhookFailure{
		ID:        uuid.NewString(),
		Source:    "stripe",
		EventID:   "evt_1",
		EventType: "customer.subscription.deleted",
		Payload:   `{"id":"evt_1"}`,
		Error:     "account_not_found",
	}
	require.NoError(t, repo.Create(ctx, f))
	assert.False(t, f.CreatedAt.IsZero())

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhook_failures WHERE event_id = $1`, "evt_1").Scan(&count))
	assert.Equal(t, 1, count)
}
