package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// csrfTokenEntry stores token metadata
type csrfTokenEntry struct {
	sessionID string
	expiry    time.Time
}

// CSRFTokenManager issues anti-forgery tokens bound to a session. Tokens are
// held in memory with a TTL; state-changing requests must present a live
// token matching their session.
type CSRFTokenManager struct {
	validTokens map[string]*csrfTokenEntry
	mu          sync.RWMutex
	tokenTTL    time.Duration
	now         func() time.Time
}

// NewCSRFTokenManager creates a CSRF token manager with the given token TTL.
func NewCSRFTokenManager(tokenTTL time.Duration) *CSRFTokenManager {
	return &CSRFTokenManager{
		validTokens: make(map[string]*csrfTokenEntry),
		tokenTTL:    tokenTTL,
		now:         time.Now,
	}
}

// GenerateToken creates a new CSRF token bound to a session ID.
func (m *CSRFTokenManager) GenerateToken(sessionID string) (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(randomBytes)

	m.mu.Lock()
	m.validTokens[token] = &csrfTokenEntry{
		sessionID: sessionID,
		expiry:    m.now().Add(m.tokenTTL),
	}
	m.mu.Unlock()

	return token, nil
}

// Validate checks that a CSRF token exists, has not expired, and belongs to
// the presenting session.
func (m *CSRFTokenManager) Validate(token, sessionID string) bool {
	m.mu.RLock()
	entry, exists := m.validTokens[token]
	m.mu.RUnlock()

	if !exists {
		return false
	}
	if entry.sessionID != sessionID {
		return false
	}

	if m.now().After(entry.expiry) {
		m.mu.Lock()
		delete(m.validTokens, token)
		m.mu.Unlock()
		return false
	}

	return true
}

// Revoke invalidates a CSRF token, e.g. alongside session logout.
func (m *CSRFTokenManager) Revoke(token string) {
	m.mu.Lock()
	delete(m.validTokens, token)
	m.mu.Unlock()
}

// RevokeSession drops every token bound to a session.
func (m *CSRFTokenManager) RevokeSession(sessionID string) {
	m.mu.Lock()
	for token, entry := range m.validTokens {
		if entry.sessionID == sessionID {
			delete(m.validTokens, token)
		}
	}
	m.mu.Unlock()
}

// Sweep removes expired tokens and returns how many were dropped. Called by
// the background cleanup manager.
func (m *CSRFTokenManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for token, entry := range m.validTokens {
		if now.After(entry.expiry) {
			delete(m.validTokens, token)
			removed++
		}
	}
	return removed
}
