package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/velmarket/gateway/internal/gateway"
	"github.com/velmarket/gateway/internal/models"
	"github.com/velmarket/gateway/internal/repositories"
	pkghttp "github.com/velmarket/gateway/pkg/http"
)

// AdminHandler serves the security administration surface: the audit event
// view, session revocation, and manual unblocking.
type AdminHandler struct {
	events   *repositories.SecurityEventRepository
	sessions *repositories.SessionRepository
	tracker  *gateway.LockoutTracker
	audit    interface{ Record(models.SecurityEvent) }
	logger   *slog.Logger
}

func NewAdminHandler(
	events *repositories.SecurityEventRepository,
	sessions *repositories.SessionRepository,
	tracker *gateway.LockoutTracker,
	audit interface{ Record(models.SecurityEvent) },
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		events:   events,
		sessions: sessions,
		tracker:  tracker,
		audit:    audit,
		logger:   logger,
	}
}

// ListSecurityEvents handles GET /admin/security-events
func (h *AdminHandler) ListSecurityEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	events, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list security events", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve security events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// RevokeAccountSessions handles POST /admin/accounts/{accountID}/revoke-sessions.
// Every live session for the account is revoked; the account holder must log
// in again.
func (h *AdminHandler) RevokeAccountSessions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		pkghttp.WriteBadRequest(w, "accountID is required")
		return
	}

	claims := gateway.SessionFromContext(r)
	if err := h.sessions.RevokeAllForAccount(r.Context(), accountID, "admin_revoked"); err != nil {
		h.logger.Error("failed to revoke account sessions",
			slog.String("account_id", accountID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to revoke sessions")
		return
	}

	h.audit.Record(models.SecurityEvent{
		Kind:      models.EventSessionRevoked,
		Severity:  models.SeverityWarn,
		AccountID: &accountID,
		Reason:    "all sessions revoked by " + claims.AccountID,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Sessions revoked"})
}

// ModerateListing handles POST /admin/listings/{listingID}/{verdict}. The
// listing CRUD lives in the marketplace service; this endpoint records the
// moderation decision that passed the gateway and acknowledges it.
func (h *AdminHandler) ModerateListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")
	verdict := chi.URLParam(r, "verdict")
	if verdict != "approve" && verdict != "reject" {
		pkghttp.WriteBadRequest(w, "verdict must be approve or reject")
		return
	}

	claims := gateway.SessionFromContext(r)
	h.audit.Record(models.SecurityEvent{
		Kind:      models.EventAdmitAllowed,
		Severity:  models.SeverityInfo,
		AccountID: &claims.AccountID,
		Reason:    "listing " + verdict,
		Metadata:  models.EventMetadata{"listing_id": listingID},
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"listing_id": listingID,
		"verdict":    verdict,
	})
}

// UnblockClient handles POST /admin/clients/{clientIP}/unblock. This is the
// only path that clears a permanent block.
func (h *AdminHandler) UnblockClient(w http.ResponseWriter, r *http.Request) {
	clientIP := chi.URLParam(r, "clientIP")
	if clientIP == "" {
		pkghttp.WriteBadRequest(w, "clientIP is required")
		return
	}

	removed := h.tracker.UnblockClient(clientIP)

	claims := gateway.SessionFromContext(r)
	h.audit.Record(models.SecurityEvent{
		Kind:      models.EventClientUnblocked,
		Severity:  models.SeverityWarn,
		IPAddress: clientIP,
		Reason:    "client manually unblocked by " + claims.AccountID,
		Metadata:  models.EventMetadata{"records_removed": removed},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "Client unblocked",
		"records_removed": removed,
	})
}
