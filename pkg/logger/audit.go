package logger

import (
	"context"
	"log/slog"
	"time"
)

// SecurityEventEntry mirrors a gateway decision into the structured log
// stream. The durable copy lives in the security_events table; this logger is
// the operational view.
type SecurityEventEntry struct {
	Kind      string
	Severity  string
	ClientKey string
	AccountID string
	IPAddress string
	Reason    string
	Metadata  map[string]string
}

// AuditLogger provides slog-backed audit logging for security decisions
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogSecurityEvent writes one decision to the log stream at a level matching
// its severity.
func (al *AuditLogger) LogSecurityEvent(event SecurityEventEntry) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_kind", event.Kind),
		slog.String("severity", event.Severity),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.ClientKey != "" {
		attrs = append(attrs, slog.String("client_key", event.ClientKey))
	}
	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	switch event.Severity {
	case "warn":
		level = slog.LevelWarn
	case "critical":
		level = slog.LevelError
	}

	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
