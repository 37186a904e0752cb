package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thumbgen/internal/model"
	"thumbgen/internal/tier"
)

var (
	// ErrAccountNotFound is returned when no account matches the lookup key.
	ErrAccountNotFound = errors.New("account_not_found")
	// ErrDuplicateIdentity is returned when an account already exists for the external identity.
	ErrDuplicateIdentity = errors.New("duplicate_identity")
	// ErrBillingCustomerTaken is returned when another account already owns the billing customer id.
	ErrBillingCustomerTaken = errors.New("billing_customer_taken")
)

// LookupField names a unique account attribute.
type LookupField int

const (
	FieldID LookupField = iota
	FieldExternalIdentityID
	FieldBillingCustomerID
)

func (f LookupField) column() (string, error) {
	switch f {
	case FieldID:
		return "id", nil
	case FieldExternalIdentityID:
		return "external_identity_id", nil
	case FieldBillingCustomerID:
		return "billing_customer_id", nil
	default:
		return "", fmt.Errorf("unknown lookup field %d", f)
	}
}

func (f LookupField) String() string {
	col, err := f.column()
	if err != nil {
		return "unknown"
	}
	return col
}

// AccountKey selects exactly one account by a unique attribute.
type AccountKey struct {
	Field LookupField
	Value string
}

func AccountByID(id string) AccountKey { return AccountKey{Field: FieldID, Value: id} }

func AccountByExternalID(id string) AccountKey {
	return AccountKey{Field: FieldExternalIdentityID, Value: id}
}

func AccountByBillingCustomerID(id string) AccountKey {
	return AccountKey{Field: FieldBillingCustomerID, Value: id}
}

func (k AccountKey) String() string { return k.Field.String() + "=" + k.Value }

// MutateFunc edits an account inside a read-modify-write. Returning an error aborts the write.
type MutateFunc func(a *model.Account) error

// AccountRepository persists accounts. Update is atomic per account: concurrent updates
// of the same account are serialized and each one observes the previous one's result.
type AccountRepository interface {
	// Create inserts a new account. Returns ErrDuplicateIdentity if the external identity is taken.
	Create(ctx context.Context, a *model.Account) error
	Get(ctx context.Context, key AccountKey) (*model.Account, error)
	// Update locks the account, applies fn, and stores the result. The stored account is returned.
	Update(ctx context.Context, key AccountKey, fn MutateFunc) (*model.Account, error)
	Delete(ctx context.Context, key AccountKey) error
}

type accountRepo struct {
	pool  *pgxpool.Pool
	retry RetryPolicy
}

// NewAccountRepo creates a Postgres-backed AccountRepository.
func NewAccountRepo(pool *pgxpool.Pool, retry RetryPolicy) AccountRepository {
	return &accountRepo{pool: pool, retry: retry}
}

const accountColumns = `
	id, external_identity_id, billing_customer_id, billing_subscription_id,
	email, name, image_url,
	COALESCE(tier, ''), COALESCE(subscription_status, ''), COALESCE(billing_cycle, ''),
	current_period_end, generations_used, downloads_used, usage_reset_date,
	created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a                    model.Account
		tierS, status, cycle string
	)
	err := row.Scan(
		&a.ID,
		&a.ExternalIdentityID,
		&a.BillingCustomerID,
		&a.BillingSubscriptionID,
		&a.Email,
		&a.Name,
		&a.ImageURL,
		&tierS,
		&status,
		&cycle,
		&a.CurrentPeriodEnd,
		&a.GenerationsUsed,
		&a.DownloadsUsed,
		&a.UsageResetDate,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Tier = tier.Tier(tierS)
	a.SubscriptionStatus = model.SubscriptionStatus(status)
	a.BillingCycle = model.BillingCycle(cycle)
	return &a, nil
}

func (r *accountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
		INSERT INTO accounts (
			id, external_identity_id, billing_customer_id, billing_subscription_id,
			email, name, image_url, tier, subscription_status, billing_cycle,
			current_period_end, generations_used, downloads_used, usage_reset_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, q,
		a.ID,
		a.ExternalIdentityID,
		a.BillingCustomerID,
		a.BillingSubscriptionID,
		a.Email,
		a.Name,
		a.ImageURL,
		string(a.Tier),
		string(a.SubscriptionStatus),
		string(a.BillingCycle),
		a.CurrentPeriodEnd,
		a.GenerationsUsed,
		a.DownloadsUsed,
		a.UsageResetDate,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating account for identity %s: %w", a.ExternalIdentityID, ErrDuplicateIdentity)
		}
		return fmt.Errorf("creating account for identity %s: %w", a.ExternalIdentityID, err)
	}
	return nil
}

func (r *accountRepo) Get(ctx context.Context, key AccountKey) (*model.Account, error) {
	col, err := key.Field.column()
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + col + ` = $1`
	a, err := scanAccount(r.pool.QueryRow(ctx, q, key.Value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("fetching account %s: %w", key, err)
	}
	return a, nil
}

func (r *accountRepo) Update(ctx context.Context, key AccountKey, fn MutateFunc) (*model.Account, error) {
	col, err := key.Field.column()
	if err != nil {
		return nil, err
	}
	var out *model.Account
	err = withRetry(ctx, r.retry, func() error {
		a, err := r.updateOnce(ctx, col, key, fn)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *accountRepo) updateOnce(ctx context.Context, col string, key AccountKey, fn MutateFunc) (*model.Account, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("starting transaction for account %s: %w", key, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	q := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + col + ` = $1 FOR UPDATE`
	a, err := scanAccount(tx.QueryRow(ctx, q, key.Value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("locking account %s: %w", key, err)
	}

	if err := fn(a); err != nil {
		return nil, err
	}

	const updateQ = `
		UPDATE accounts SET
			billing_customer_id = $2,
			billing_subscription_id = $3,
			email = $4,
			name = $5,
			image_url = $6,
			tier = NULLIF($7, ''),
			subscription_status = NULLIF($8, ''),
			billing_cycle = NULLIF($9, ''),
			current_period_end = $10,
			generations_used = $11,
			downloads_used = $12,
			usage_reset_date = $13,
			updated_at = $14
		WHERE id = $1
	`
	a.UpdatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, updateQ,
		a.ID,
		a.BillingCustomerID,
		a.BillingSubscriptionID,
		a.Email,
		a.Name,
		a.ImageURL,
		string(a.Tier),
		string(a.SubscriptionStatus),
		string(a.BillingCycle),
		a.CurrentPeriodEnd,
		a.GenerationsUsed,
		a.DownloadsUsed,
		a.UsageResetDate,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("updating account %s: %w", key, ErrBillingCustomerTaken)
		}
		return nil, fmt.Errorf("updating account %s: %w", key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing account %s: %w", key, err)
	}
	return a, nil
}

func (r *accountRepo) Delete(ctx context.Context, key AccountKey) error {
	col, err := key.Field.column()
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE `+col+` = $1`, key.Value)
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
