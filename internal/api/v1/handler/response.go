package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"thumbgen/internal/api/v1/dto"
	"thumbgen/internal/middleware"
	"thumbgen/internal/model"
	"thumbgen/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponseDTO{Error: code, Message: message})
}

// writeServiceError maps service errors to responses. Unknown errors are logged and answered
// with a generic 500.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if q, ok := service.AsQuotaExceeded(err); ok {
		writeJSON(w, http.StatusForbidden, dto.LimitExceededDTO{
			Error:      "limit_exceeded",
			Message:    fmt.Sprintf("You have used all %d %ss included in your plan this period. Upgrade to continue.", q.Limit, q.Kind),
			Kind:       string(q.Kind),
			Used:       q.Used,
			Limit:      q.Limit,
			UpgradeURL: q.UpgradeURL,
		})
		return
	}
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Account not found")
	case errors.Is(err, service.ErrThumbnailNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Thumbnail not found")
	case errors.Is(err, service.ErrInvalidResource), errors.Is(err, service.ErrInvalidPlan):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrNoBillingAccount):
		writeError(w, http.StatusBadRequest, "no_billing_account", "No billing account found. Subscribe to a plan first.")
	case errors.Is(err, service.ErrBillingNotEnabled):
		writeError(w, http.StatusServiceUnavailable, "billing_unavailable", "Billing is not available")
	default:
		logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation on it.
// It writes the 400 response itself and reports false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Validation failed: "+err.Error())
		return false
	}
	return true
}

func requireExternalID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.ExternalIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
	}
	return id, ok
}

func toConsumeDTO(c *model.ConsumeResult) dto.ConsumeResponseDTO {
	if c == nil {
		return dto.ConsumeResponseDTO{}
	}
	return dto.ConsumeResponseDTO{Kind: string(c.Kind), Used: c.Used, Limit: c.Limit}
}

func toThumbnailDTO(t *model.Thumbnail) dto.ThumbnailResponseDTO {
	return dto.ThumbnailResponseDTO{
		ID:        t.ID,
		Title:     t.Title,
		ImageURL:  t.ImageURL,
		Votes:     t.Votes,
		CreatedAt: t.CreatedAt,
	}
}
