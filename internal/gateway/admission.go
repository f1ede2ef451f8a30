package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/velmarket/gateway/internal/config"
	"github.com/velmarket/gateway/internal/metrics"
	"github.com/velmarket/gateway/internal/models"
	pkghttp "github.com/velmarket/gateway/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

// SessionContextKey is the key for storing verified session claims in context
const SessionContextKey contextKey = "session"

// SessionVerifier validates a session token and returns its claims.
type SessionVerifier interface {
	Verify(tokenString string) (*models.SessionClaims, error)
}

// RevocationChecker answers whether a session ID has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// CSRFValidator checks anti-forgery tokens for state-changing requests.
type CSRFValidator interface {
	Validate(token, sessionID string) bool
}

// EventRecorder is the best-effort audit collaborator.
type EventRecorder interface {
	Record(event models.SecurityEvent)
}

// Admission composes the gateway checks into the protected-route decision:
// client identity, rate limit, session verification, revocation, CSRF. One
// code path, parameterized entirely by the security profile.
type Admission struct {
	limiter    *RateLimiter
	tracker    *LockoutTracker
	verifier   SessionVerifier
	revocation RevocationChecker
	csrf       CSRFValidator
	recorder   EventRecorder
	profile    config.SecurityProfile
	ipConfig   *pkghttp.IPConfig
	logger     *slog.Logger
}

func NewAdmission(
	limiter *RateLimiter,
	tracker *LockoutTracker,
	verifier SessionVerifier,
	revocation RevocationChecker,
	csrf CSRFValidator,
	recorder EventRecorder,
	profile config.SecurityProfile,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *Admission {
	return &Admission{
		limiter:    limiter,
		tracker:    tracker,
		verifier:   verifier,
		revocation: revocation,
		csrf:       csrf,
		recorder:   recorder,
		profile:    profile,
		ipConfig:   ipConfig,
		logger:     logger,
	}
}

// Middleware is the admission control applied to every protected route.
func (a *Admission) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := pkghttp.ExtractClientIP(r, a.ipConfig)

		// Permanently blocked clients get nothing, session or not
		if a.tracker.IsClientPermanentlyBlocked(clientIP) {
			a.deny(w, r, clientIP, http.StatusForbidden, "permanently_blocked", nil)
			return
		}

		if a.shouldRateLimit(r) {
			decision := a.limiter.Check(clientIP, r.URL.Path)
			if !decision.Allowed {
				a.denyRateLimited(w, r, clientIP, decision)
				return
			}
		}

		token := extractSessionToken(r)
		if token == "" {
			a.deny(w, r, clientIP, http.StatusUnauthorized, "missing_session", nil)
			return
		}

		claims, err := a.verifier.Verify(token)
		if err != nil {
			// The reason differs only for audit; every verification failure
			// is the same 401 to the caller
			a.deny(w, r, clientIP, http.StatusUnauthorized, verifyReason(err), nil)
			return
		}

		if a.revocation != nil && claims.ID != "" {
			revoked, err := a.revocation.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				// Fail open on registry errors: the signed token already
				// passed verification, and availability wins for reads.
				// Expired or malformed tokens still failed closed above.
				a.logger.Error("revocation check failed",
					slog.String("session_id", claims.ID), slog.Any("error", err))
			} else if revoked {
				a.deny(w, r, clientIP, http.StatusUnauthorized, "session_revoked", &claims.AccountID)
				return
			}
		}

		if isStateChanging(r.Method) {
			csrfToken := extractCSRFToken(r)
			if csrfToken == "" || !a.csrf.Validate(csrfToken, claims.ID) {
				metrics.AdmissionDecision.WithLabelValues("deny", "csrf").Inc()
				a.recorder.Record(models.SecurityEvent{
					Kind:      models.EventCSRFDenied,
					Severity:  models.SeverityWarn,
					ClientKey: ClientKey{ClientIP: clientIP, Target: r.URL.Path}.String(),
					AccountID: &claims.AccountID,
					IPAddress: clientIP,
					UserAgent: r.UserAgent(),
					Reason:    "csrf_missing_or_invalid",
				})
				pkghttp.WriteForbidden(w, "Request could not be validated")
				return
			}
		}

		metrics.AdmissionDecision.WithLabelValues("allow", "ok").Inc()
		a.recorder.Record(models.SecurityEvent{
			Kind:      models.EventAdmitAllowed,
			Severity:  models.SeverityInfo,
			ClientKey: ClientKey{ClientIP: clientIP, Target: r.URL.Path}.String(),
			AccountID: &claims.AccountID,
			IPAddress: clientIP,
			Reason:    r.Method + " " + r.URL.Path,
		})

		ctx := context.WithValue(r.Context(), SessionContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin enforces the admin role on top of admission. Must run after
// Middleware.
func (a *Admission) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := SessionFromContext(r)
		if claims == nil {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}
		if !claims.Admin {
			pkghttp.WriteForbidden(w, "Insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitOnly applies the client identity, permanent-block, and rate-limit
// checks without requiring a session. The login endpoint is reachable
// unauthenticated by definition, but it is never exempt from rate limiting.
func (a *Admission) RateLimitOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := pkghttp.ExtractClientIP(r, a.ipConfig)

		if a.tracker.IsClientPermanentlyBlocked(clientIP) {
			a.deny(w, r, clientIP, http.StatusForbidden, "permanently_blocked", nil)
			return
		}

		decision := a.limiter.Check(clientIP, r.URL.Path)
		if !decision.Allowed {
			a.denyRateLimited(w, r, clientIP, decision)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Admission) denyRateLimited(w http.ResponseWriter, r *http.Request, clientIP string, decision RateDecision) {
	metrics.AdmissionDecision.WithLabelValues("deny", "rate_limited").Inc()
	a.recorder.Record(models.SecurityEvent{
		Kind:      models.EventAdmitDenied,
		Severity:  models.SeverityWarn,
		ClientKey: ClientKey{ClientIP: clientIP, Target: r.URL.Path}.String(),
		IPAddress: clientIP,
		UserAgent: r.UserAgent(),
		Reason:    "rate_limited",
	})
	pkghttp.WriteTooManyRequests(w, decision.RetryAfter)
}

func (a *Admission) deny(w http.ResponseWriter, r *http.Request, clientIP string, status int, reason string, accountID *string) {
	metrics.AdmissionDecision.WithLabelValues("deny", reason).Inc()
	a.recorder.Record(models.SecurityEvent{
		Kind:      models.EventAdmitDenied,
		Severity:  models.SeverityWarn,
		ClientKey: ClientKey{ClientIP: clientIP, Target: r.URL.Path}.String(),
		AccountID: accountID,
		IPAddress: clientIP,
		UserAgent: r.UserAgent(),
		Reason:    reason,
	})

	switch status {
	case http.StatusForbidden:
		pkghttp.WriteForbidden(w, "Access denied")
	default:
		pkghttp.WriteUnauthorized(w, "Authentication required")
	}
}

// shouldRateLimit skips the sliding-window check for read-only requests
// under a relaxed profile. Same code path, different constants.
func (a *Admission) shouldRateLimit(r *http.Request) bool {
	if a.profile.RelaxReadEndpoints && !isStateChanging(r.Method) {
		return false
	}
	return true
}

// verifyReason maps a verification error to its audit label.
func verifyReason(err error) string {
	switch {
	case errors.Is(err, models.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, models.ErrSessionTooOld):
		return "session_too_old"
	default:
		return "session_malformed"
	}
}

// extractSessionToken reads the session from the cookie set at login, or a
// Bearer header for non-browser API clients.
func extractSessionToken(r *http.Request) string {
	if cookie, err := r.Cookie("admin_session"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// extractCSRFToken reads the anti-forgery marker: header first, cookie as
// fallback.
func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie("csrf_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// isStateChanging reports whether the HTTP method modifies state
func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}

// SessionFromContext extracts verified session claims from request context
func SessionFromContext(r *http.Request) *models.SessionClaims {
	claims, ok := r.Context().Value(SessionContextKey).(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
