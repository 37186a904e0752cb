package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbgen/internal/api/v1/dto"
	"thumbgen/internal/model"
	"thumbgen/internal/tier"
)

func TestGetUsage_DefaultsForUnknownIdentity(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/v1/usage", "ghost", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "free", body["current_tier"])
	assert.EqualValues(t, 3, body["generations_limit"])
	assert.EqualValues(t, 0, body["generations_used"])
	assert.Equal(t, false, body["has_billing_account"])
}

func TestGetUsage_Unauthenticated(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/v1/usage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConsume(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, &model.Account{ExternalIdentityID: "user_1", Tier: tier.Standard, DownloadsUsed: 10, UsageResetDate: timePtr(testNow.Add(-time.Hour))})

	rec := s.do(t, http.MethodPost, "/v1/usage/consume", "user_1", dto.ConsumeRequest{Kind: "download"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.ConsumeResponseDTO{Kind: "download", Used: 11, Limit: 100}, decode[dto.ConsumeResponseDTO](t, rec))
}

func TestConsume_LimitExceeded(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, &model.Account{ExternalIdentityID: "user_1", GenerationsUsed: 3, UsageResetDate: timePtr(testNow.Add(-time.Hour))})

	rec := s.do(t, http.MethodPost, "/v1/usage/consume", "user_1", dto.ConsumeRequest{Kind: "generation"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	body := decode[dto.LimitExceededDTO](t, rec)
	assert.Equal(t, "limit_exceeded", body.Error)
	assert.Equal(t, "generation", body.Kind)
	assert.Equal(t, 3, body.Used)
	assert.Equal(t, 3, body.Limit)
	assert.Equal(t, "https://thumbs.example.com/pricing", body.UpgradeURL)
	assert.NotEmpty(t, body.Message)
}

func TestConsume_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/usage/consume", "ghost", dto.ConsumeRequest{Kind: "generation"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[dto.ErrorResponseDTO](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/v1/usage/consume", "ghost", dto.ConsumeRequest{Kind: "upload"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/usage/consume", "ghost", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func timePtr(t time.Time) *time.Time { return &t }
