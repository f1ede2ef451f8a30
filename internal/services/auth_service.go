package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/velmarket/gateway/internal/auth"
	"github.com/velmarket/gateway/internal/gateway"
	"github.com/velmarket/gateway/internal/models"
	pkgauth "github.com/velmarket/gateway/pkg/auth"
	pkglogger "github.com/velmarket/gateway/pkg/logger"
)

// AccountRepository is the account lookup collaborator.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// SessionRegistry is the revocation bookkeeping collaborator.
type SessionRegistry interface {
	Create(ctx context.Context, session *models.Session) error
	Revoke(ctx context.Context, sessionID, reason string) error
	RevokeAllForAccount(ctx context.Context, accountID, reason string) error
}

// dummyPasswordHash is a bcrypt hash of a random throwaway value, compared
// against when the account does not exist.
const dummyPasswordHash = "$2a$14$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// verifyPassword is the credential comparison every denial path must pay for
// exactly once.
var verifyPassword = pkgauth.VerifyPassword

// RateLimitedError carries the retry-after hint for a policy denial. The
// hint never states which threshold was crossed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return "too many attempts"
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token   string
	Claims  *models.SessionClaims
	Account *models.Account
}

// AuthService orchestrates authentication attempts: lockout consultation,
// progressive delay, credential verification, and session minting.
type AuthService struct {
	accounts AccountRepository
	sessions SessionRegistry
	tracker  *gateway.LockoutTracker
	delay    *auth.ProgressiveDelay
	sm       *auth.SessionManager
	audit    *AuditService
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	accounts AccountRepository,
	sessions SessionRegistry,
	tracker *gateway.LockoutTracker,
	delay *auth.ProgressiveDelay,
	sm *auth.SessionManager,
	audit *AuditService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		sessions: sessions,
		tracker:  tracker,
		delay:    delay,
		sm:       sm,
		audit:    audit,
		logger:   logger,
	}
}

// Login authenticates a credential pair for the given client identity.
//
// Denial reasons converge: an unknown email, a disabled account, and a wrong
// password all take the same code path, produce the same error, and consume
// comparable time, so a caller cannot tell which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP, userAgent string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrUnauthorized
	}

	key := gateway.ClientKey{ClientIP: clientIP, Target: email}

	// Permanent blocks short-circuit before any credential work so they cost
	// nothing and take uniform time.
	status := s.tracker.Status(key)
	switch status.State {
	case gateway.LockoutPermanent:
		s.audit.Record(models.SecurityEvent{
			Kind:      models.EventPermanentBlock,
			Severity:  models.SeverityWarn,
			ClientKey: key.String(),
			IPAddress: clientIP,
			UserAgent: userAgent,
			Reason:    "login attempt from permanently blocked client",
		})
		return nil, models.ErrPermanentlyBlocked
	case gateway.LockoutTemporary:
		s.audit.Record(models.SecurityEvent{
			Kind:      models.EventLoginRateLimited,
			Severity:  models.SeverityWarn,
			ClientKey: key.String(),
			IPAddress: clientIP,
			UserAgent: userAgent,
			Reason:    "login attempt while temporarily locked",
		})
		return nil, &RateLimitedError{RetryAfter: status.RetryAfter}
	}

	// Progressive delay throttles automated retries independent of the hard
	// rate limit; jitter blunts timing analysis of the verification below.
	s.delay.Wait(ctx, status.FailureCount)

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn the same bcrypt work as a real comparison so an unknown
			// email is not distinguishable from a wrong password by latency
			verifyPassword(password, dummyPasswordHash)
			return nil, s.failLogin(key, clientIP, userAgent, "unknown_account", nil)
		}
		// Storage failure is operational, never an authentication failure,
		// and never counts toward the lockout
		s.logger.Error("account lookup failed", slog.Any("error", err))
		s.audit.Record(models.SecurityEvent{
			Kind:      models.EventSystemError,
			Severity:  models.SeverityCritical,
			ClientKey: key.String(),
			IPAddress: clientIP,
			Reason:    "account lookup failed",
		})
		return nil, models.ErrInternalServer
	}

	if account.Status != models.AccountStatusActive {
		// An inactive account still pays the full comparison; refusing early
		// would expose its existence through response latency
		verifyPassword(password, account.PasswordHash)
		return nil, s.failLogin(key, clientIP, userAgent, "account_"+account.Status, &account.ID)
	}

	if !verifyPassword(password, account.PasswordHash) {
		return nil, s.failLogin(key, clientIP, userAgent, "invalid_password", &account.ID)
	}

	s.tracker.RecordSuccess(key)

	token, claims, err := s.sm.Mint(account, clientIP, userAgent)
	if err != nil {
		s.logger.Error("failed to mint session token",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	session := &models.Session{
		ID:        claims.ID,
		AccountID: account.ID,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.logger.Error("failed to persist session record",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("admin logged in", slog.String("account_id", account.ID))
	s.audit.Record(models.SecurityEvent{
		Kind:      models.EventLoginSuccess,
		Severity:  models.SeverityInfo,
		ClientKey: key.String(),
		AccountID: &account.ID,
		IPAddress: clientIP,
		UserAgent: userAgent,
	})

	return &LoginResult{Token: token, Claims: claims, Account: account}, nil
}

// failLogin is the single denial path for every authentication failure. The
// internal reason differs for audit; the returned error and its eventual
// response body are identical for all of them.
func (s *AuthService) failLogin(key gateway.ClientKey, clientIP, userAgent, reason string, accountID *string) error {
	decision := s.tracker.RecordFailure(key)

	kind := models.EventLoginFailed
	severity := models.SeverityWarn
	switch decision.State {
	case gateway.LockoutPermanent:
		kind = models.EventPermanentBlock
		severity = models.SeverityCritical
	case gateway.LockoutTemporary:
		kind = models.EventLockout
	}

	s.logger.Info("login failed: invalid credentials",
		slog.String("client_ip", clientIP),
		slog.Int("failure_count", decision.FailureCount))
	s.audit.Record(models.SecurityEvent{
		Kind:      kind,
		Severity:  severity,
		ClientKey: key.String(),
		AccountID: accountID,
		IPAddress: clientIP,
		UserAgent: userAgent,
		Reason:    reason,
		Metadata: models.EventMetadata{
			"failure_count": decision.FailureCount,
			"state":         decision.State.String(),
		},
	})

	return models.ErrUnauthorized
}

// Refresh exchanges a verified session for a fresh token. The new session is
// registered and the old one revoked; the absolute lifetime cap is enforced
// from the original login.
func (s *AuthService) Refresh(ctx context.Context, claims *models.SessionClaims) (*LoginResult, error) {
	token, newClaims, err := s.sm.Refresh(claims)
	if err != nil {
		if errors.Is(err, models.ErrSessionTooOld) {
			return nil, models.ErrSessionTooOld
		}
		s.logger.Error("failed to refresh session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	session := &models.Session{
		ID:        newClaims.ID,
		AccountID: newClaims.AccountID,
		ClientIP:  newClaims.ClientIP,
		IssuedAt:  newClaims.IssuedAt.Time,
		ExpiresAt: newClaims.ExpiresAt.Time,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.logger.Error("failed to persist refreshed session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.sessions.Revoke(ctx, claims.ID, "refreshed"); err != nil {
		// The old token still expires on its own TTL
		s.logger.Warn("failed to revoke predecessor session",
			slog.String("session_id", claims.ID), slog.Any("error", err))
	}

	s.logger.Info("session refreshed", slog.String("account_id", newClaims.AccountID))

	return &LoginResult{Token: token, Claims: newClaims}, nil
}

// Logout revokes the presented session.
func (s *AuthService) Logout(ctx context.Context, claims *models.SessionClaims, clientIP string) error {
	if err := s.sessions.Revoke(ctx, claims.ID, "logout"); err != nil {
		s.logger.Error("failed to revoke session",
			slog.String("session_id", claims.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Record(models.SecurityEvent{
		Kind:      models.EventSessionRevoked,
		Severity:  models.SeverityInfo,
		ClientKey: fmt.Sprintf("%s|%s", clientIP, pkglogger.SanitizedEmail(claims.Email)),
		AccountID: &claims.AccountID,
		IPAddress: clientIP,
		Reason:    "logout",
	})
	s.logger.Info("admin logged out", slog.String("account_id", claims.AccountID))
	return nil
}
