package model

import "time"

// Thumbnail is a generated image owned by an identity.
type Thumbnail struct {
	ID                 string    `db:"id" json:"id"`
	ExternalIdentityID string    `db:"external_identity_id" json:"-"`
	Title              string    `db:"title" json:"title"`
	ImageURL           string    `db:"image_url" json:"image_url"`
	StorageKey         string    `db:"storage_key" json:"-"`
	Votes              int       `db:"votes" json:"votes"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// ImageRequest describes one call to the image-generation provider.
type ImageRequest struct {
	Prompt          string
	Model           string
	AspectRatio     string
	ReferenceImages []string
}
