package dto

import "time"

// ThumbnailGenerateRequest is the body of POST /thumbnails/generate.
type ThumbnailGenerateRequest struct {
	Prompt          string   `json:"prompt" validate:"required,max=2000"`
	Model           string   `json:"model,omitempty" validate:"omitempty,max=200"`
	Width           int      `json:"width,omitempty" validate:"omitempty,min=1,max=8192"`
	Height          int      `json:"height,omitempty" validate:"omitempty,min=1,max=8192"`
	ReferenceImages []string `json:"reference_images,omitempty" validate:"omitempty,max=4,dive,required"`
}

type ThumbnailResponseDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ImageURL  string    `json:"image_url"`
	Votes     int       `json:"votes"`
	CreatedAt time.Time `json:"created_at"`
}

type ThumbnailGenerateResponseDTO struct {
	Thumbnail ThumbnailResponseDTO `json:"thumbnail"`
	Prompt    string               `json:"prompt"`
	Model     string               `json:"model"`
	Usage     ConsumeResponseDTO   `json:"usage"`
}

type ThumbnailDownloadResponseDTO struct {
	URL   string             `json:"url"`
	Usage ConsumeResponseDTO `json:"usage"`
}
