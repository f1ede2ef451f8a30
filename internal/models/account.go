package models

import (
	"time"
)

// Account statuses
const (
	AccountStatusActive    = "active"
	AccountStatusSuspended = "suspended"
	AccountStatusDisabled  = "disabled"
)

// Account represents an admin account that can authenticate through the gateway.
// The marketplace CRUD surfaces consume the gateway's decision; they never touch
// this record directly.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string // e.g., "admin", "moderator"
	Permissions  []string
	Status       string // "active", "suspended", "disabled"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the account carries the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == "admin"
}
