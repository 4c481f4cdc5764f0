package models

import "time"

// Visitor represents one anonymous browser session. All chat history,
// uploads, and generated artifacts belong to a visitor and are removed
// when the visitor expires or closes the session.
type Visitor struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
