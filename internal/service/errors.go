package service

import (
	"errors"
	"fmt"

	"thumbgen/internal/repository"
	"thumbgen/internal/tier"
)

var (
	ErrAccountNotFound      = repository.ErrAccountNotFound
	ErrDuplicateIdentity    = repository.ErrDuplicateIdentity
	ErrBillingCustomerTaken = repository.ErrBillingCustomerTaken
	ErrThumbnailNotFound    = repository.ErrThumbnailNotFound

	ErrInvalidResource   = errors.New("invalid resource kind")
	ErrInvalidPlan       = errors.New("invalid plan selection")
	ErrNoBillingAccount  = errors.New("no billing account")
	ErrBillingNotEnabled = errors.New("billing is not configured")
)

// QuotaExceededError is returned when a consume would take usage past the tier limit.
type QuotaExceededError struct {
	Kind       tier.Resource
	Used       int
	Limit      int
	UpgradeURL string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s limit reached (%d/%d)", e.Kind, e.Used, e.Limit)
}

// AsQuotaExceeded unwraps err into a QuotaExceededError when possible.
func AsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var q *QuotaExceededError
	if errors.As(err, &q) {
		return q, true
	}
	return nil, false
}
