package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document is an uploaded file together with the ids of its indexed chunks.
// VectorIDs is ordered by chunk position.
type Document struct {
	ID        uint                        `gorm:"primaryKey" json:"id"`
	Title     string                      `gorm:"size:255;not null" json:"title"`
	Content   string                      `gorm:"type:text" json:"content"`
	FilePath  string                      `gorm:"size:512" json:"file_path"`
	FileType  string                      `gorm:"size:32" json:"file_type"`
	Category  string                      `gorm:"size:100;index" json:"category"`
	Summary   string                      `gorm:"type:text" json:"summary,omitempty"`
	Tags      string                      `gorm:"size:255" json:"tags,omitempty"`
	VectorIDs datatypes.JSONSlice[string] `json:"vector_ids"`
	CreatedAt time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Category is a node of the knowledge category tree.
type Category struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	ParentID    *uint      `gorm:"index" json:"parent_id"`
	Children    []Category `gorm:"foreignKey:ParentID" json:"children"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ChatMessage is one turn of a stored conversation. ID order is append order.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"size:255;index;not null" json:"session_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
