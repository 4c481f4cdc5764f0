package models

import "time"

// Artifact describes a generated spreadsheet or word-processing file found
// in the scratch directory. Artifacts are discovered by directory listing;
// this struct is the listing entry, not a registry row.
type Artifact struct {
	FileName  string    `json:"file_name"`
	Path      string    `json:"-"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// MIME types for the two artifact formats.
const (
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)
