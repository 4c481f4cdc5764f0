package models

import "time"

// Role identifies who produced a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a visitor's conversation history.
type Message struct {
	ID        int64     `json:"id"`
	VisitorID int64     `json:"visitor_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	FileIDs   []int64   `json:"file_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
