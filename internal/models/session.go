package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims embedded in a gateway session token.
//
// AuthTime carries the Unix timestamp of the original login. Refresh mints a
// new token but preserves AuthTime, so the absolute session lifetime is
// enforced from first issuance no matter how often the token is refreshed.
type SessionClaims struct {
	AccountID   string   `json:"account_id"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Admin       bool     `json:"admin"`
	Permissions []string `json:"permissions,omitempty"`
	ClientIP    string   `json:"client_ip,omitempty"`
	UAHash      string   `json:"ua_hash,omitempty"`
	AuthTime    int64    `json:"auth_time"`
	jwt.RegisteredClaims
}

// Session is the lightweight registry record persisted at login for
// revocation bookkeeping.
type Session struct {
	ID        string // token jti
	AccountID string
	ClientIP  string
	UserAgent string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}
