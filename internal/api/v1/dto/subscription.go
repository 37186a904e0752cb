package dto

// SubscriptionCheckoutRequest selects the paid plan to check out.
type SubscriptionCheckoutRequest struct {
	Tier         string `json:"tier" validate:"required,oneof=standard pro"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
}

type SessionURLResponseDTO struct {
	URL string `json:"url"`
}
