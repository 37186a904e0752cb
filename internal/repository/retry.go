package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// RetryPolicy bounds how long a read-modify-write is retried after a transient conflict.
type RetryPolicy struct {
	MaxElapsed time.Duration
}

// DefaultRetryPolicy is used when the configured policy is zero.
var DefaultRetryPolicy = RetryPolicy{MaxElapsed: 2 * time.Second}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	if p.MaxElapsed <= 0 {
		p = DefaultRetryPolicy
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = p.MaxElapsed
	return backoff.WithContext(b, ctx)
}

// withRetry runs op until it succeeds, returns a non-transient error, or the policy gives up.
func withRetry(ctx context.Context, p RetryPolicy, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backoff(ctx))
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return pgconn.SafeToRetry(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
