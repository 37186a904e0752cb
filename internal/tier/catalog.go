// Package tier holds the plan catalog: the per-period quota each subscription tier grants
// for the metered resources.
package tier

// Tier identifies a subscription plan.
type Tier string

const (
	Free     Tier = "free"
	Standard Tier = "standard"
	Pro      Tier = "pro"
)

// Resource is a metered resource counted against a tier's quota.
type Resource string

const (
	Generation Resource = "generation"
	Download   Resource = "download"
)

// Limits is the quota granted per usage period.
type Limits struct {
	Generations int `json:"generations"`
	Downloads   int `json:"downloads"`
}

var catalog = map[Tier]Limits{
	Free:     {Generations: 3, Downloads: 3},
	Standard: {Generations: 100, Downloads: 100},
	Pro:      {Generations: 300, Downloads: 300},
}

// LimitsFor returns the quota for a tier, defaulting to the free tier for unknown or empty tiers.
func LimitsFor(t Tier) Limits {
	if l, ok := catalog[t]; ok {
		return l
	}
	return catalog[Free]
}

// For returns the limit that applies to the given resource.
func (l Limits) For(r Resource) int {
	switch r {
	case Generation:
		return l.Generations
	case Download:
		return l.Downloads
	default:
		return 0
	}
}

// Valid reports whether t is one of the catalog tiers.
func (t Tier) Valid() bool {
	_, ok := catalog[t]
	return ok
}

// OrFree returns t, or Free when t is empty or unknown.
func (t Tier) OrFree() Tier {
	if t.Valid() {
		return t
	}
	return Free
}

// Paid reports whether the tier is purchasable through checkout.
func (t Tier) Paid() bool {
	return t == Standard || t == Pro
}

// Valid reports whether r is a metered resource.
func (r Resource) Valid() bool {
	return r == Generation || r == Download
}
