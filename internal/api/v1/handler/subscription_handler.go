package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"thumbgen/internal/api/v1/dto"
	"thumbgen/internal/model"
	"thumbgen/internal/service"
	"thumbgen/internal/tier"
)

// SubscriptionHandler handles subscription-related endpoints.
type SubscriptionHandler struct {
	stripeSvc *service.StripeService
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(stripeSvc *service.StripeService, validate *validator.Validate, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		stripeSvc: stripeSvc,
		validate:  validate,
		logger:    logger.With().Str("handler", "SubscriptionHandler").Logger(),
	}
}

// RegisterRoutes registers the subscription endpoints.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/subscriptions/checkout", h.Checkout)
	r.Post("/subscriptions/portal", h.Portal)
}

// Checkout creates a Stripe Checkout session for a paid plan and returns its URL.
func (h *SubscriptionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	externalID, ok := requireExternalID(w, r)
	if !ok {
		return
	}
	var req dto.SubscriptionCheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	url, err := h.stripeSvc.CreateCheckoutSession(r.Context(), externalID, tier.Tier(req.Tier), model.BillingCycle(req.BillingCycle))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SessionURLResponseDTO{URL: url})
}

// Portal returns a Stripe Customer Portal URL for the caller.
func (h *SubscriptionHandler) Portal(w http.ResponseWriter, r *http.Request) {
	externalID, ok := requireExternalID(w, r)
	if !ok {
		return
	}
	url, err := h.stripeSvc.CreatePortalSession(r.Context(), externalID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SessionURLResponseDTO{URL: url})
}
