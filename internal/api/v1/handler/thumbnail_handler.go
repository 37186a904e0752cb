package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"thumbgen/internal/api/v1/dto"
	"thumbgen/internal/service"
)

type ThumbnailHandler struct {
	thumbSvc service.ThumbnailService
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewThumbnailHandler(thumbSvc service.ThumbnailService, validate *validator.Validate, logger zerolog.Logger) *ThumbnailHandler {
	return &ThumbnailHandler{
		thumbSvc: thumbSvc,
		validate: validate,
		logger:   logger.With().Str("handler", "ThumbnailHandler").Logger(),
	}
}

func (h *ThumbnailHandler) RegisterRoutes(r chi.Router) {
	r.Route("/thumbnails", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/generate", h.Generate)
		r.Delete("/{thumbnailID}", h.Delete)
		r.Post("/{thumbnailID}/download", h.Download)
	})
}

func (h *ThumbnailHandler) Generate(w http.ResponseWriter, r *http.Request) {
	externalID, ok := requireExternalID(w, r)
	if !ok {
		return
	}
	var req dto.ThumbnailGenerateRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	res, err := h.thumbSvc.Generate(r.Context(), externalID, service.GenerateInput{
		Prompt:          req.Prompt,
		Model:           req.Model,
		Width:           req.Width,
		Height:          req.Height,
		ReferenceImages: req.ReferenceImages,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ThumbnailGenerateResponseDTO{
		Thumbnail: toThumbnailDTO(res.Thumbnail),
		Prompt:    res.Prompt,
		Model:     res.Model,
		Usage:     toConsumeDTO(res.Usage),
	})
}

func (h *ThumbnailHandler) List(w http.ResponseWriter, r *http.Request) {
	externalID, ok := requireExternalID(w, r)
	if !ok {
		return
	}
	list, err := h.thumbSvc.List(r.Context(), externalID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	resp := make([]dto.ThumbnailResponseDTO, 0, len(list))
	for i := range list {
		resp = append(resp, toThumbnailDTO(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ThumbnailHandler) Delete(w http.ResponseWriter, r *http.Request) {
	externalID, ok := requireExternalID(w, r)
	if !ok {
		return
	}
	if err := h.thumbSvc.Delete(r.Context(), externalID, chi.URLParam(r, "thumbnailID")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download consumes one download and returns a URL the client can fetch the image from.
func (h *ThumbnailHandler) Download(w http.ResponseWriter, r *http.Request) {
	externalID, ok := requireExternalID(w, r)
	if !ok {
		return
	}
	res, err := h.thumbSvc.Download(r.Context(), externalID, chi.URLParam(r, "thumbnailID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ThumbnailDownloadResponseDTO{URL: res.URL, Usage: toConsumeDTO(res.Usage)})
}
