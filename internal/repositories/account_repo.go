package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velmarket/gateway/internal/database"
	"github.com/velmarket/gateway/internal/models"
)

// AccountRepository is the gateway's read-mostly view of admin accounts. The
// marketplace's account management owns writes; the gateway only needs lookup
// plus the bootstrap insert.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var passwordHash *string

	err := scanner.Scan(
		&account.ID, &account.Email, &passwordHash, &account.Name,
		&account.Role, &account.Permissions, &account.Status,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}

	return &account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `
		SELECT id, email, password_hash, name, role, permissions, status, created_at, updated_at
		FROM admin_accounts WHERE email = $1
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, email, password_hash, name, role, permissions, status, created_at, updated_at
		FROM admin_accounts WHERE id = $1
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

// Create inserts an admin account. Used only by the startup bootstrap path.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO admin_accounts (email, password_hash, name, role, permissions, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, email, password_hash, name, role, permissions, status, created_at, updated_at
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.Email,
		account.PasswordHash,
		account.Name,
		account.Role,
		account.Permissions,
		account.Status,
	))
}
