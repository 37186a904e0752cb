package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	svix "github.com/svix/svix-webhooks/go"

	"thumbgen/internal/api/v1/dto"
	"thumbgen/internal/metrics"
	"thumbgen/internal/model"
	"thumbgen/internal/repository"
	"thumbgen/internal/service"
)

const (
	maxWebhookBodyBytes = 65536

	sourceStripe   = "stripe"
	sourceIdentity = "identity"
)

// WebhookHandler verifies and applies billing and identity provider webhooks.
// Verified deliveries that fail to apply are recorded and answered with 500 so the
// provider redelivers them.
type WebhookHandler struct {
	stripeSvc   *service.StripeService
	identitySvc service.IdentityService
	failures    repository.WebhookFailureRepository
	identityWH  *svix.Webhook
	metrics     *metrics.Collector
	logger      zerolog.Logger
}

// NewWebhookHandler returns an error when identitySecret is set but malformed. An empty
// identitySecret disables the identity endpoint.
func NewWebhookHandler(stripeSvc *service.StripeService, identitySvc service.IdentityService, failures repository.WebhookFailureRepository, identitySecret string, m *metrics.Collector, logger zerolog.Logger) (*WebhookHandler, error) {
	h := &WebhookHandler{
		stripeSvc:   stripeSvc,
		identitySvc: identitySvc,
		failures:    failures,
		metrics:     m,
		logger:      logger.With().Str("handler", "WebhookHandler").Logger(),
	}
	if identitySecret != "" {
		wh, err := svix.NewWebhook(identitySecret)
		if err != nil {
			return nil, fmt.Errorf("invalid identity webhook secret: %w", err)
		}
		h.identityWH = wh
	}
	return h, nil
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Stripe)
	r.Post("/webhooks/identity", h.Identity)
}

func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read Stripe webhook body")
		writeError(w, http.StatusBadRequest, "invalid_request", "Unreadable body")
		return
	}

	event, err := h.stripeSvc.ConstructEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, service.ErrBillingNotEnabled) {
			writeServiceError(w, h.logger, err)
			return
		}
		h.logger.Warn().Err(err).Msg("Stripe webhook signature verification failed")
		h.count(sourceStripe, "unverified", metrics.OutcomeError)
		writeError(w, http.StatusBadRequest, "invalid_signature", "Invalid signature")
		return
	}

	handled, err := h.stripeSvc.HandleEvent(r.Context(), event)
	if err != nil {
		h.fail(r.Context(), w, sourceStripe, event.ID, string(event.Type), payload, err)
		return
	}
	h.count(sourceStripe, string(event.Type), outcomeFor(handled))
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandler) Identity(w http.ResponseWriter, r *http.Request) {
	if h.identityWH == nil {
		writeError(w, http.StatusServiceUnavailable, "identity_webhooks_unavailable", "Identity webhooks are not configured")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read identity webhook body")
		writeError(w, http.StatusBadRequest, "invalid_request", "Unreadable body")
		return
	}
	if err := h.identityWH.Verify(payload, r.Header); err != nil {
		h.logger.Warn().Err(err).Msg("Identity webhook signature verification failed")
		h.count(sourceIdentity, "unverified", metrics.OutcomeError)
		writeError(w, http.StatusBadRequest, "invalid_signature", "Invalid signature")
		return
	}

	var event dto.IdentityWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn().Err(err).Msg("Malformed identity webhook payload")
		writeError(w, http.StatusBadRequest, "invalid_request", "Malformed payload")
		return
	}
	var user dto.IdentityUserData
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &user); err != nil {
			h.logger.Warn().Err(err).Str("event_type", event.Type).Msg("Malformed identity webhook data")
			writeError(w, http.StatusBadRequest, "invalid_request", "Malformed payload")
			return
		}
	}
	if isIdentityLifecycleEvent(event.Type) && user.ID == "" {
		h.logger.Warn().Str("event_type", event.Type).Msg("Identity webhook event has no user id")
		h.count(sourceIdentity, event.Type, metrics.OutcomeError)
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing user id")
		return
	}
	eventID := r.Header.Get("svix-id")

	handled, err := h.applyIdentityEvent(r.Context(), event.Type, user)
	if err != nil {
		h.fail(r.Context(), w, sourceIdentity, eventID, event.Type, payload, err)
		return
	}
	h.count(sourceIdentity, event.Type, outcomeFor(handled))
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandler) applyIdentityEvent(ctx context.Context, eventType string, user dto.IdentityUserData) (bool, error) {
	if !isIdentityLifecycleEvent(eventType) {
		h.logger.Info().Str("event_type", eventType).Msg("Unhandled identity webhook event")
		return false, nil
	}

	switch eventType {
	case "user.created":
		_, err := h.identitySvc.OnIdentityCreated(ctx, user.ID, model.Profile{
			Email:    model.StringPtr(user.PrimaryEmail()),
			Name:     model.StringPtr(user.FirstName),
			ImageURL: model.StringPtr(user.ImageURL),
		})
		if errors.Is(err, service.ErrDuplicateIdentity) {
			h.logger.Warn().Str("external_id", user.ID).Msg("Account already exists for identity, acknowledging")
			return false, nil
		}
		return true, err
	case "user.updated":
		_, err := h.identitySvc.OnIdentityUpdated(ctx, user.ID, model.Profile{
			Name:     model.StringPtr(user.FirstName),
			ImageURL: model.StringPtr(user.ImageURL),
		})
		return true, err
	default:
		return true, h.identitySvc.OnIdentityDeleted(ctx, user.ID)
	}
}

func isIdentityLifecycleEvent(eventType string) bool {
	switch eventType {
	case "user.created", "user.updated", "user.deleted":
		return true
	}
	return false
}

// fail records the delivery for inspection and answers 500.
func (h *WebhookHandler) fail(ctx context.Context, w http.ResponseWriter, source, eventID, eventType string, payload []byte, cause error) {
	h.logger.Error().Err(cause).
		Str("source", source).
		Str("event_id", eventID).
		Str("event_type", eventType).
		Msg("Failed to process webhook")
	h.count(source, eventType, metrics.OutcomeError)

	if h.failures != nil {
		f := &model.WebhookFailure{
			ID:        uuid.NewString(),
			Source:    source,
			EventID:   eventID,
			EventType: eventType,
			Payload:   string(payload),
			Error:     cause.Error(),
		}
		if err := h.failures.Create(context.WithoutCancel(ctx), f); err != nil {
			h.logger.Error().Err(err).Str("event_id", eventID).Msg("Failed to record webhook failure")
		}
	}
	writeError(w, http.StatusInternalServerError, "processing_failed", "Webhook processing failed")
}

func (h *WebhookHandler) count(source, eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookEventsTotal.WithLabelValues(source, eventType, outcome).Inc()
	}
}

func outcomeFor(handled bool) string {
	if handled {
		return metrics.OutcomeSuccess
	}
	return metrics.OutcomeIgnored
}
