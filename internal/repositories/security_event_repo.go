package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velmarket/gateway/internal/database"
	"github.com/velmarket/gateway/internal/models"
)

// SecurityEventRepository is the append-only audit sink. Events are never
// updated or deleted by the gateway.
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

// Append writes one security event.
func (r *SecurityEventRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (kind, severity, client_key, account_id, ip_address, user_agent, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		event.Kind,
		event.Severity,
		event.ClientKey,
		event.AccountID,
		event.IPAddress,
		event.UserAgent,
		event.Reason,
		event.Metadata,
	)
	return database.MapPostgresError(err)
}

func scanSecurityEventRow(scanner rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent

	err := scanner.Scan(
		&event.ID, &event.Kind, &event.Severity, &event.ClientKey,
		&event.AccountID, &event.IPAddress, &event.UserAgent,
		&event.Reason, &event.Metadata, &event.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

// ListRecent returns the newest events for the admin audit view.
func (r *SecurityEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, kind, severity, client_key, account_id, ip_address, user_agent, reason, metadata, created_at
		FROM security_events
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanSecurityEventRows(rows)
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}
