package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbgen/internal/api/v1/dto"
	"thumbgen/internal/model"
)

func TestThumbnailLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, &model.Account{ExternalIdentityID: "user_1"})

	rec := s.do(t, http.MethodPost, "/v1/thumbnails/generate", "user_1", dto.ThumbnailGenerateRequest{Prompt: "a cat on a skateboard", Width: 1280, Height: 720})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gen := decode[dto.ThumbnailGenerateResponseDTO](t, rec)
	assert.Equal(t, "a cat on a skateboard", gen.Thumbnail.Title)
	assert.Equal(t, "https://img.test/out.png", gen.Thumbnail.ImageURL)
	assert.Equal(t, "default/model", gen.Model)
	assert.Equal(t, 1, gen.Usage.Used)

	rec = s.do(t, http.MethodGet, "/v1/thumbnails", "user_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]dto.ThumbnailResponseDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, gen.Thumbnail.ID, list[0].ID)

	rec = s.do(t, http.MethodPost, "/v1/thumbnails/"+gen.Thumbnail.ID+"/download", "user_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dl := decode[dto.ThumbnailDownloadResponseDTO](t, rec)
	assert.Equal(t, "https://img.test/out.png", dl.URL)
	assert.Equal(t, dto.ConsumeResponseDTO{Kind: "download", Used: 1, Limit: 3}, dl.Usage)

	rec = s.do(t, http.MethodDelete, "/v1/thumbnails/"+gen.Thumbnail.ID, "user_2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/v1/thumbnails/"+gen.Thumbnail.ID, "user_1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/thumbnails/"+uuid.NewString()+"/download", "user_1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerate_Validation(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, &model.Account{ExternalIdentityID: "user_1"})

	bad := []dto.ThumbnailGenerateRequest{
		{},
		{Prompt: strings.Repeat("x", 2001)},
		{Prompt: "ok", ReferenceImages: []string{"a", "b", "c", "d", "e"}},
	}
	for _, body := range bad {
		rec := s.do(t, http.MethodPost, "/v1/thumbnails/generate", "user_1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Zero(t, s.provider.calls)
}

func TestGenerate_QuotaExceeded(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, &model.Account{ExternalIdentityID: "user_1", GenerationsUsed: 3, UsageResetDate: timePtr(testNow)})

	rec := s.do(t, http.MethodPost, "/v1/thumbnails/generate", "user_1", dto.ThumbnailGenerateRequest{Prompt: "cat"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, s.provider.calls)
}
