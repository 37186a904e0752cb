package dto

import "encoding/json"

// IdentityWebhookEvent is the envelope of an identity provider webhook.
type IdentityWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type IdentityEmailAddress struct {
	EmailAddress string `json:"email_address"`
}

// IdentityUserData is the user object carried by user.* events.
type IdentityUserData struct {
	ID             string                 `json:"id"`
	EmailAddresses []IdentityEmailAddress `json:"email_addresses"`
	ImageURL       string                 `json:"image_url"`
	FirstName      string                 `json:"first_name"`
}

// PrimaryEmail returns the first listed address, or "".
func (d IdentityUserData) PrimaryEmail() string {
	if len(d.EmailAddresses) == 0 {
		return ""
	}
	return d.EmailAddresses[0].EmailAddress
}
