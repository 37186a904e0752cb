package model

import "time"

// WebhookFailure records a verified webhook delivery that could not be applied.
type WebhookFailure struct {
	ID        string    `db:"id"`
	Source    string    `db:"source"`
	EventID   string    `db:"event_id"`
	EventType string    `db:"event_type"`
	Payload   string    `db:"payload"` // raw JSON body
	Error     string    `db:"error"`
	CreatedAt time.Time `db:"created_at"`
}
