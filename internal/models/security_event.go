package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Security event kinds
const (
	EventLoginSuccess     = "login_success"
	EventLoginFailed      = "login_failed"
	EventLoginRateLimited = "login_rate_limited"
	EventLockout          = "lockout"
	EventPermanentBlock   = "permanent_block"
	EventAdmitAllowed     = "admit_allowed"
	EventAdmitDenied      = "admit_denied"
	EventCSRFDenied       = "csrf_denied"
	EventSessionRevoked   = "session_revoked"
	EventClientUnblocked  = "client_unblocked"
	EventSystemError      = "system_error"
)

// Severity levels for security events
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityCritical = "critical"
)

// SecurityEvent is a single append-only audit record of a gateway decision.
// Records are never updated or deleted by this service.
type SecurityEvent struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	Kind      string        `db:"kind" json:"kind"`
	Severity  string        `db:"severity" json:"severity"`
	ClientKey string        `db:"client_key" json:"client_key"`
	AccountID *string       `db:"account_id" json:"account_id,omitempty"`
	IPAddress string        `db:"ip_address" json:"ip_address"`
	UserAgent string        `db:"user_agent" json:"user_agent,omitempty"`
	Reason    string        `db:"reason" json:"reason,omitempty"`
	Metadata  EventMetadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// EventMetadata holds additional context for security events
type EventMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (em *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*em = make(EventMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*em = EventMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (em EventMetadata) Value() (driver.Value, error) {
	if em == nil {
		return nil, nil
	}
	return json.Marshal(em)
}
