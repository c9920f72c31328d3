package models

import "time"

// User represents a user in the multi-user system
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose in JSON
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastLoginAt  time.Time `json:"last_login_at,omitempty"`
}

// Account represents an external mail account synced for a user
type Account struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"user_id"`
	Email        string     `json:"email"`
	IMAPServer   string     `json:"imap_server"`
	IMAPPort     int        `json:"imap_port"`
	Username     string     `json:"username"`
	Password     string     `json:"-"` // Never expose in JSON
	Folders      []string   `json:"folders"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
