package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/velmarket/gateway/internal/models"
)

// SessionManager mints and verifies self-contained session tokens. Tokens
// are never mutated in place; refresh issues a new token carrying the
// original auth_time so the absolute session cap is enforced from first
// login.
type SessionManager struct {
	secret          []byte
	sessionTTL      time.Duration
	absoluteTimeout time.Duration
	now             func() time.Time
}

// NewSessionManager creates a SessionManager with a fixed TTL and absolute
// lifetime cap taken from the active security profile.
func NewSessionManager(secret string, sessionTTL, absoluteTimeout time.Duration) *SessionManager {
	return &SessionManager{
		secret:          []byte(secret),
		sessionTTL:      sessionTTL,
		absoluteTimeout: absoluteTimeout,
		now:             time.Now,
	}
}

// FingerprintUserAgent hashes a User-Agent for inclusion in token claims.
func FingerprintUserAgent(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return fmt.Sprintf("%x", sum)[:32]
}

// Mint creates a session token for a freshly authenticated account, capturing
// the client identity observed at issuance.
func (m *SessionManager) Mint(account *models.Account, clientIP, userAgent string) (string, *models.SessionClaims, error) {
	now := m.now()
	claims := &models.SessionClaims{
		AccountID:   account.ID,
		Email:       account.Email,
		Role:        account.Role,
		Admin:       account.IsAdmin(),
		Permissions: account.Permissions,
		ClientIP:    clientIP,
		UAHash:      FingerprintUserAgent(userAgent),
		AuthTime:    now.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   account.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, claims, nil
}

// Refresh issues a new token for an already-verified session. The new token
// gets a fresh expiry and jti but keeps the original auth_time, so refresh
// can never extend a session past the absolute timeout.
func (m *SessionManager) Refresh(old *models.SessionClaims) (string, *models.SessionClaims, error) {
	now := m.now()
	if now.Sub(time.Unix(old.AuthTime, 0)) > m.absoluteTimeout {
		return "", nil, models.ErrSessionTooOld
	}

	claims := &models.SessionClaims{
		AccountID:   old.AccountID,
		Email:       old.Email,
		Role:        old.Role,
		Admin:       old.Admin,
		Permissions: old.Permissions,
		ClientIP:    old.ClientIP,
		UAHash:      old.UAHash,
		AuthTime:    old.AuthTime,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   old.AccountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, claims, nil
}

// Verify validates a session token. Checks run in order: envelope and
// signature, required claims, expiry, absolute session age. Every failure
// maps to a sentinel; callers treat all non-nil results as deny and use the
// distinction only for audit.
func (m *SessionManager) Verify(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithValidMethods([]string{"HS256"}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrSessionExpired
		}
		return nil, models.ErrSessionMalformed
	}
	if !token.Valid {
		return nil, models.ErrSessionMalformed
	}

	// Required claims: subject, role, admin marker, issuance times
	if claims.AccountID == "" || claims.Role == "" || claims.IssuedAt == nil || claims.AuthTime == 0 {
		return nil, models.ErrSessionMalformed
	}

	if m.now().Sub(time.Unix(claims.AuthTime, 0)) > m.absoluteTimeout {
		return nil, models.ErrSessionTooOld
	}

	return claims, nil
}
