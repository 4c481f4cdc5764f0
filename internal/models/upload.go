package models

import "time"

// Upload statuses.
const (
	UploadStatusActive  = "active"
	UploadStatusExpired = "expired"
)

// Upload represents a visitor-uploaded document stored in the scratch
// directory.
type Upload struct {
	ID         int64     `json:"id"`
	VisitorID  int64     `json:"visitor_id"`
	FileName   string    `json:"file_name"`
	StoredPath string    `json:"stored_path"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
