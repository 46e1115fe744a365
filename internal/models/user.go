package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the directory row this service mirrors presence into. The
// task-tracker CRUD service owns the rest of the schema; only the
// presence columns are written from here.
type User struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	DisplayName string         `gorm:"size:100" json:"display_name"`
	IsOnline    bool           `gorm:"index" json:"is_online"`
	LastSeen    *time.Time     `json:"last_seen,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// UserSummary is the directory's answer to "who is online".
type UserSummary struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}
