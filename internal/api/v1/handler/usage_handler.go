package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"thumbgen/internal/api/v1/dto"
	"thumbgen/internal/service"
	"thumbgen/internal/tier"
)

// UsageHandler serves the usage projection and the consume endpoint.
type UsageHandler struct {
	usageSvc service.UsageService
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewUsageHandler(usageSvc service.UsageService, validate *validator.Validate, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		usageSvc: usageSvc,
		validate: validate,
		logger:   logger.With().Str("handler", "UsageHandler").Logger(),
	}
}

// RegisterRoutes mounts usage routes on an authenticated router.
func (h *UsageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/usage", h.GetUsage)
	r.Post("/usage/consume", h.Consume)
}

// GetUsage returns the caller's usage and plan. Callers without an account see free-tier defaults.
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	externalID, ok := requireExternalID(w, r)
	if !ok {
		return
	}
	projection, err := h.usageSvc.GetUsage(r.Context(), externalID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

func (h *UsageHandler) Consume(w http.ResponseWriter, r *http.Request) {
	externalID, ok := requireExternalID(w, r)
	if !ok {
		return
	}
	var req dto.ConsumeRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	result, err := h.usageSvc.Consume(r.Context(), externalID, tier.Resource(req.Kind))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsumeDTO(result))
}
