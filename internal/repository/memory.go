package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"thumbgen/internal/model"
)

// memoryAccountRepo is an in-process AccountRepository. A single mutex serializes every
// mutation, so Update is atomic across goroutines.
type memoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

// NewMemoryAccountRepo creates an AccountRepository that keeps accounts in memory.
func NewMemoryAccountRepo() AccountRepository {
	return &memoryAccountRepo{accounts: make(map[string]*model.Account)}
}

func (r *memoryAccountRepo) find(key AccountKey) *model.Account {
	if key.Field == FieldID {
		return r.accounts[key.Value]
	}
	for _, a := range r.accounts {
		switch key.Field {
		case FieldExternalIdentityID:
			if a.ExternalIdentityID == key.Value {
				return a
			}
		case FieldBillingCustomerID:
			if a.BillingCustomerID != nil && *a.BillingCustomerID == key.Value {
				return a
			}
		}
	}
	return nil
}

func (r *memoryAccountRepo) Create(_ context.Context, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(AccountByExternalID(a.ExternalIdentityID)) != nil || r.accounts[a.ID] != nil {
		return ErrDuplicateIdentity
	}
	if a.BillingCustomerID != nil && r.find(AccountByBillingCustomerID(*a.BillingCustomerID)) != nil {
		return ErrBillingCustomerTaken
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.accounts[a.ID] = a.Clone()
	return nil
}

func (r *memoryAccountRepo) Get(_ context.Context, key AccountKey) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.find(key)
	if a == nil {
		return nil, ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (r *memoryAccountRepo) Update(_ context.Context, key AccountKey, fn MutateFunc) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.find(key)
	if stored == nil {
		return nil, ErrAccountNotFound
	}
	next := stored.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.BillingCustomerID != nil {
		if owner := r.find(AccountByBillingCustomerID(*next.BillingCustomerID)); owner != nil && owner.ID != next.ID {
			return nil, ErrBillingCustomerTaken
		}
	}
	next.ID = stored.ID
	next.UpdatedAt = time.Now().UTC()
	r.accounts[stored.ID] = next
	return next.Clone(), nil
}

func (r *memoryAccountRepo) Delete(_ context.Context, key AccountKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.find(key)
	if a == nil {
		return ErrAccountNotFound
	}
	delete(r.accounts, a.ID)
	return nil
}

type memoryThumbnailRepo struct {
	mu         sync.Mutex
	thumbnails map[string]model.Thumbnail
}

func NewMemoryThumbnailRepo() ThumbnailRepository {
	return &memoryThumbnailRepo{thumbnails: make(map[string]model.Thumbnail)}
}

func (r *memoryThumbnailRepo) Create(_ context.Context, t *model.Thumbnail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.thumbnails[t.ID] = *t
	return nil
}

func (r *memoryThumbnailRepo) ListByOwner(_ context.Context, externalID string, limit int) ([]model.Thumbnail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Thumbnail
	for _, t := range r.thumbnails {
		if t.ExternalIdentityID == externalID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryThumbnailRepo) GetForOwner(_ context.Context, id, externalID string) (*model.Thumbnail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.thumbnails[id]
	if !ok || t.ExternalIdentityID != externalID {
		return nil, ErrThumbnailNotFound
	}
	return &t, nil
}

func (r *memoryThumbnailRepo) DeleteForOwner(_ context.Context, id, externalID string) (*model.Thumbnail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.thumbnails[id]
	if !ok || t.ExternalIdentityID != externalID {
		return nil, ErrThumbnailNotFound
	}
	delete(r.thumbnails, id)
	return &t, nil
}

type memoryWebhookFailureRepo struct {
	mu       sync.Mutex
	failures []model.WebhookFailure
}

// MemoryWebhookFailures is the in-memory WebhookFailureRepository. All exposes recorded rows.
type MemoryWebhookFailures interface {
	WebhookFailureRepository
	All() []model.WebhookFailure
}

func NewMemoryWebhookFailureRepo() MemoryWebhookFailures {
	return &memoryWebhookFailureRepo{}
}

func (r *memoryWebhookFailureRepo) Create(_ context.Context, f *model.WebhookFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.CreatedAt = time.Now().UTC()
	r.failures = append(r.failures, *f)
	return nil
}

func (r *memoryWebhookFailureRepo) All() []model.WebhookFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.WebhookFailure, len(r.failures))
	copy(out, r.failures)
	return out
}
