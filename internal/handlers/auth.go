package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/velmarket/gateway/internal/auth"
	"github.com/velmarket/gateway/internal/gateway"
	"github.com/velmarket/gateway/internal/metrics"
	"github.com/velmarket/gateway/internal/models"
	"github.com/velmarket/gateway/internal/services"
	pkghttp "github.com/velmarket/gateway/pkg/http"
)

// invalidCredentialsMessage is the one body every credential failure gets.
// Unknown email, wrong password, and disabled account are indistinguishable
// to the caller.
const invalidCredentialsMessage = "Invalid email or password"

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=1,max=128"`
}

type loginResponse struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthHandler serves login, logout, and session refresh.
type AuthHandler struct {
	authService  *services.AuthService
	csrf         *auth.CSRFTokenManager
	cookieConfig auth.CookieConfig
	sessionTTL   time.Duration
	ipConfig     *pkghttp.IPConfig
	logger       *slog.Logger
}

func NewAuthHandler(
	authService *services.AuthService,
	csrf *auth.CSRFTokenManager,
	cookieConfig auth.CookieConfig,
	sessionTTL time.Duration,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		csrf:         csrf,
		cookieConfig: cookieConfig,
		sessionTTL:   sessionTTL,
		ipConfig:     ipConfig,
		logger:       logger,
	}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	timer := time.Now()
	defer func() {
		metrics.LoginDuration.Observe(time.Since(timer).Seconds())
	}()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		// Malformed input is a client error, not a failed attempt; it never
		// touches the lockout counter
		pkghttp.WriteBadRequest(w, validationMessage(err))
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.authService.Login(r.Context(), req.Email, req.Password, clientIP, r.UserAgent())
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	csrfToken, err := h.csrf.GenerateToken(result.Claims.ID)
	if err != nil {
		h.logger.Error("failed to generate csrf token", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		return
	}

	auth.SetSessionCookie(w, result.Token, h.sessionTTL, h.cookieConfig)
	auth.SetCSRFCookie(w, csrfToken, h.sessionTTL, h.cookieConfig)

	metrics.LoginAttempts.WithLabelValues("success").Inc()

	writeJSON(w, http.StatusOK, loginResponse{
		AccountID: result.Account.ID,
		Email:     result.Account.Email,
		Name:      result.Account.Name,
		Role:      result.Account.Role,
		CSRFToken: csrfToken,
		ExpiresAt: result.Claims.ExpiresAt.Time,
	})
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var rle *services.RateLimitedError
	switch {
	case errors.As(err, &rle):
		metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		pkghttp.WriteTooManyRequests(w, rle.RetryAfter)
	case errors.Is(err, models.ErrPermanentlyBlocked):
		metrics.LoginAttempts.WithLabelValues("blocked").Inc()
		pkghttp.WriteForbidden(w, "Access denied")
	case errors.Is(err, models.ErrUnauthorized):
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		pkghttp.WriteUnauthorized(w, invalidCredentialsMessage)
	default:
		// Operational failure, not an authentication outcome: 503, and as
		// opaque as every other login response
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	}
}

// Logout handles POST /auth/logout. Runs behind admission, so a verified
// session is present in context.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := gateway.SessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.authService.Logout(r.Context(), claims, clientIP); err != nil {
		pkghttp.WriteInternalError(w, "An internal error occurred")
		return
	}

	h.csrf.RevokeSession(claims.ID)
	auth.ClearSessionCookies(w, h.cookieConfig)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Refresh handles POST /auth/refresh. Exchanges the current verified session
// for a fresh one; the absolute lifetime cap is enforced from the original
// login, not the latest refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims := gateway.SessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	result, err := h.authService.Refresh(r.Context(), claims)
	if err != nil {
		if errors.Is(err, models.ErrSessionTooOld) {
			auth.ClearSessionCookies(w, h.cookieConfig)
			pkghttp.WriteUnauthorized(w, "Session has expired, please log in again")
			return
		}
		pkghttp.WriteInternalError(w, "An internal error occurred")
		return
	}

	h.csrf.RevokeSession(claims.ID)
	csrfToken, err := h.csrf.GenerateToken(result.Claims.ID)
	if err != nil {
		h.logger.Error("failed to generate csrf token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An internal error occurred")
		return
	}

	auth.SetSessionCookie(w, result.Token, h.sessionTTL, h.cookieConfig)
	auth.SetCSRFCookie(w, csrfToken, h.sessionTTL, h.cookieConfig)

	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": csrfToken,
		"expires_at": result.Claims.ExpiresAt.Time,
	})
}

// Me handles GET /auth/me, returning the verified session identity.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := gateway.SessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":  claims.AccountID,
		"email":       claims.Email,
		"role":        claims.Role,
		"admin":       claims.Admin,
		"permissions": claims.Permissions,
		"auth_time":   time.Unix(claims.AuthTime, 0).UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
