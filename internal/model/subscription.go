package model

import (
	"time"

	"thumbgen/internal/tier"
)

// SubscriptionChange is a billing-provider subscription snapshot applied to an account.
// Every field overwrites the stored value.
type SubscriptionChange struct {
	BillingCustomerID     string
	BillingSubscriptionID string
	// ExternalIdentityID is only consulted when no account carries BillingCustomerID yet.
	ExternalIdentityID string
	Tier               tier.Tier
	Status             SubscriptionStatus
	BillingCycle       BillingCycle
	CurrentPeriodEnd   *time.Time
}

// AccountEvent is published after an account's subscription state changes.
type AccountEvent struct {
	Type               string             `json:"type"`
	ExternalIdentityID string             `json:"external_id"`
	Tier               tier.Tier          `json:"tier"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	OccurredAt         time.Time          `json:"occurred_at"`
}
