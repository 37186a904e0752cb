package model

import (
	"time"

	"thumbgen/internal/tier"
)

// SubscriptionStatus mirrors the billing provider's subscription state.
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusTrialing SubscriptionStatus = "trialing"
)

// BillingCycle is the recurrence of a paid subscription.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Valid reports whether c is a known billing cycle.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// Account links an identity-provider user to its subscription state and usage counters.
// Empty Tier, SubscriptionStatus and BillingCycle mean "not set" and are stored as NULL.
type Account struct {
	ID                    string             `db:"id" json:"id"`
	ExternalIdentityID    string             `db:"external_identity_id" json:"external_identity_id"`
	BillingCustomerID     *string            `db:"billing_customer_id" json:"billing_customer_id,omitempty"`
	BillingSubscriptionID *string            `db:"billing_subscription_id" json:"billing_subscription_id,omitempty"`
	Email                 *string            `db:"email" json:"email,omitempty"`
	Name                  *string            `db:"name" json:"name,omitempty"`
	ImageURL              *string            `db:"image_url" json:"image_url,omitempty"`
	Tier                  tier.Tier          `db:"tier" json:"tier,omitempty"`
	SubscriptionStatus    SubscriptionStatus `db:"subscription_status" json:"subscription_status,omitempty"`
	BillingCycle          BillingCycle       `db:"billing_cycle" json:"billing_cycle,omitempty"`
	CurrentPeriodEnd      *time.Time         `db:"current_period_end" json:"current_period_end,omitempty"`
	GenerationsUsed       int                `db:"generations_used" json:"generations_used"`
	DownloadsUsed         int                `db:"downloads_used" json:"downloads_used"`
	UsageResetDate        *time.Time         `db:"usage_reset_date" json:"usage_reset_date,omitempty"`
	CreatedAt             time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at" json:"updated_at"`
}

// Profile carries identity-provider profile fields. Nil fields are left untouched on update.
type Profile struct {
	Email    *string
	Name     *string
	ImageURL *string
}

// EffectiveTier returns the account tier, defaulting to free.
func (a *Account) EffectiveTier() tier.Tier {
	return a.Tier.OrFree()
}

// EffectiveStatus returns the subscription status, defaulting to active.
func (a *Account) EffectiveStatus() SubscriptionStatus {
	if a.SubscriptionStatus == "" {
		return StatusActive
	}
	return a.SubscriptionStatus
}

// Used returns the stored counter for a resource.
func (a *Account) Used(r tier.Resource) int {
	switch r {
	case tier.Generation:
		return a.GenerationsUsed
	case tier.Download:
		return a.DownloadsUsed
	default:
		return 0
	}
}

// SetUsed overwrites the stored counter for a resource.
func (a *Account) SetUsed(r tier.Resource, n int) {
	switch r {
	case tier.Generation:
		a.GenerationsUsed = n
	case tier.Download:
		a.DownloadsUsed = n
	}
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (a *Account) Clone() *Account {
	c := *a
	c.BillingCustomerID = cloneString(a.BillingCustomerID)
	c.BillingSubscriptionID = cloneString(a.BillingSubscriptionID)
	c.Email = cloneString(a.Email)
	c.Name = cloneString(a.Name)
	c.ImageURL = cloneString(a.ImageURL)
	c.CurrentPeriodEnd = cloneTime(a.CurrentPeriodEnd)
	c.UsageResetDate = cloneTime(a.UsageResetDate)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StringPtr returns nil for the empty string and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
