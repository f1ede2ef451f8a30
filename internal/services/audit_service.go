package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/velmarket/gateway/internal/models"
	pkglogger "github.com/velmarket/gateway/pkg/logger"
)

// SecurityEventSink is the durable append-only store for security events.
type SecurityEventSink interface {
	Append(ctx context.Context, event *models.SecurityEvent) error
}

// AuditService records security events best-effort. The durable write runs
// on its own goroutine with a bounded timeout and never blocks or fails the
// decision path that produced the event.
type AuditService struct {
	sink         SecurityEventSink
	auditLogger  *pkglogger.AuditLogger
	logger       *slog.Logger
	writeTimeout time.Duration
}

// NewAuditService creates a new AuditService
func NewAuditService(sink SecurityEventSink, auditLogger *pkglogger.AuditLogger, logger *slog.Logger) *AuditService {
	return &AuditService{
		sink:         sink,
		auditLogger:  auditLogger,
		logger:       logger,
		writeTimeout: 2 * time.Second,
	}
}

// Record emits one security event. The slog mirror is synchronous; the
// database append is fire-and-forget.
func (s *AuditService) Record(event models.SecurityEvent) {
	entry := pkglogger.SecurityEventEntry{
		Kind:      event.Kind,
		Severity:  event.Severity,
		ClientKey: event.ClientKey,
		IPAddress: event.IPAddress,
		Reason:    event.Reason,
	}
	if event.AccountID != nil {
		entry.AccountID = *event.AccountID
	}
	s.auditLogger.LogSecurityEvent(entry)

	if s.sink == nil {
		return
	}

	go func(ev models.SecurityEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()

		if err := s.sink.Append(ctx, &ev); err != nil {
			// Audit storage failure must not surface to the request path
			s.logger.Error("failed to persist security event",
				slog.String("kind", ev.Kind),
				slog.Any("error", err))
		}
	}(event)
}
