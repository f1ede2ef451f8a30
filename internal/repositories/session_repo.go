package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velmarket/gateway/internal/database"
	"github.com/velmarket/gateway/internal/models"
)

// SessionRepository is the lightweight session registry used for revocation
// bookkeeping. Tokens stay self-contained; this table only answers "has this
// session been revoked" and supports logout-all.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

// Create persists a session record at login.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO admin_sessions (id, account_id, client_ip, user_agent, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.AccountID,
		session.ClientIP,
		session.UserAgent,
		session.IssuedAt,
		session.ExpiresAt,
	)
	return database.MapPostgresError(err)
}

// Revoke marks a session as revoked. Idempotent.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID, reason string) error {
	query := `
		UPDATE admin_sessions
		SET revoked_at = NOW(), revoke_reason = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	_, err := r.pool.Exec(ctx, query, sessionID, reason)
	return database.MapPostgresError(err)
}

// RevokeAllForAccount revokes every live session for an account.
func (r *SessionRepository) RevokeAllForAccount(ctx context.Context, accountID, reason string) error {
	query := `
		UPDATE admin_sessions
		SET revoked_at = NOW(), revoke_reason = $2
		WHERE account_id = $1 AND revoked_at IS NULL
	`

	_, err := r.pool.Exec(ctx, query, accountID, reason)
	return database.MapPostgresError(err)
}

// IsRevoked reports whether a session has been revoked. An unknown session
// ID reports false; the signed token is the source of truth for validity.
func (r *SessionRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM admin_sessions WHERE id = $1 AND revoked_at IS NOT NULL)`

	var revoked bool
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(&revoked)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return revoked, nil
}

// CleanupExpired removes session rows whose tokens can no longer be valid.
func (r *SessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM admin_sessions WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
