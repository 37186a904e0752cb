package model

import (
	"time"

	"thumbgen/internal/tier"
)

// UsageResetPeriod is the length of a usage-counting window. It is a fixed duration and does
// not follow calendar months or the billing cycle.
const UsageResetPeriod = 30 * 24 * time.Hour

// WindowExpired reports whether the usage window that started at resetDate has lapsed at now.
// A nil resetDate counts as the Unix epoch, so it is always expired.
func WindowExpired(resetDate *time.Time, now time.Time) bool {
	start := time.Unix(0, 0)
	if resetDate != nil {
		start = *resetDate
	}
	return now.Sub(start) > UsageResetPeriod
}

// ConsumeResult is the counter state after a successful consume.
type ConsumeResult struct {
	Kind  tier.Resource `json:"kind"`
	Used  int           `json:"used"`
	Limit int           `json:"limit"`
}

// UsageProjection is the read-only usage view shown to clients.
type UsageProjection struct {
	GenerationsUsed    int                `json:"generations_used"`
	GenerationsLimit   int                `json:"generations_limit"`
	DownloadsUsed      int                `json:"downloads_used"`
	DownloadsLimit     int                `json:"downloads_limit"`
	Tier               tier.Tier          `json:"current_tier"`
	BillingCycle       BillingCycle       `json:"billing_cycle"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	NextBillingDate    time.Time          `json:"next_billing_date"`
	HasBillingAccount  bool               `json:"has_billing_account"`
}

// DefaultProjection is the view for an identity that has no account yet.
func DefaultProjection(now time.Time) *UsageProjection {
	limits := tier.LimitsFor(tier.Free)
	return &UsageProjection{
		GenerationsLimit:   limits.Generations,
		DownloadsLimit:     limits.Downloads,
		Tier:               tier.Free,
		BillingCycle:       CycleMonthly,
		SubscriptionStatus: StatusActive,
		NextBillingDate:    now.Add(UsageResetPeriod),
	}
}

// ProjectUsage builds the client view of a stored account at now. An expired window is
// reported as zero usage; the stored counters are reset lazily by the next consume.
func ProjectUsage(a *Account, now time.Time) *UsageProjection {
	t := a.EffectiveTier()
	limits := tier.LimitsFor(t)
	p := &UsageProjection{
		GenerationsUsed:    a.GenerationsUsed,
		GenerationsLimit:   limits.Generations,
		DownloadsUsed:      a.DownloadsUsed,
		DownloadsLimit:     limits.Downloads,
		Tier:               t,
		BillingCycle:       a.BillingCycle,
		SubscriptionStatus: a.EffectiveStatus(),
		CurrentPeriodEnd:   a.CurrentPeriodEnd,
		HasBillingAccount:  a.BillingCustomerID != nil && *a.BillingCustomerID != "",
	}
	if WindowExpired(a.UsageResetDate, now) {
		p.GenerationsUsed = 0
		p.DownloadsUsed = 0
	}
	if p.BillingCycle == "" {
		p.BillingCycle = CycleMonthly
	}
	if a.CurrentPeriodEnd != nil {
		p.NextBillingDate = *a.CurrentPeriodEnd
	} else {
		p.NextBillingDate = now.Add(UsageResetPeriod)
	}
	return p
}
