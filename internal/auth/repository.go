package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parley-chat/parley/internal/platform/httpx"
)

// Repository persists user accounts.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user User) (int64, error)
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByUsername returns the account with the given username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	const query = `
		SELECT id, username, password_hash, roles, is_active, created_at
		FROM users WHERE username = $1`

	var u User
	err := r.pool.QueryRow(ctx, query, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Roles, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user %s: %w", username, err)
	}
	return &u, nil
}

// Create inserts a new account. A duplicate username maps to ErrConflict
// via the unique constraint on users.username.
func (r *PGRepository) Create(ctx context.Context, user User) (int64, error) {
	const query = `
		INSERT INTO users (username, password_hash, roles, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query, user.Username, user.PasswordHash, user.Roles, user.IsActive).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("auth: username %s: %w", user.Username, httpx.ErrConflict)
		}
		return 0, fmt.Errorf("auth: create user: %w", err)
	}
	return id, nil
}
