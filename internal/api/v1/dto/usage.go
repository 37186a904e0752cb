package dto

// ConsumeRequest is the body of POST /usage/consume.
type ConsumeRequest struct {
	Kind string `json:"kind" validate:"required,oneof=generation download"`
}

// ConsumeResponseDTO reports the counter after a successful consume.
type ConsumeResponseDTO struct {
	Kind  string `json:"kind"`
	Used  int    `json:"used"`
	Limit int    `json:"limit"`
}

// LimitExceededDTO is the 403 body returned when a quota is exhausted.
type LimitExceededDTO struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Kind       string `json:"kind"`
	Used       int    `json:"used"`
	Limit      int    `json:"limit"`
	UpgradeURL string `json:"upgrade_url"`
}

type ErrorResponseDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
