package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"chargebroker/internal/models"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// UserRepository handles persistence of API accounts.
type UserRepository struct {
	q Querier
}

// NewUserRepository returns repository bound to the given querier.
func NewUserRepository(q Querier) *UserRepository {
	return &UserRepository{q: q}
}

// Insert creates a new account and fills in its generated id.
func (r *UserRepository) Insert(ctx context.Context, u *models.User) error {
	const query = `
		INSERT INTO users (user_id, email, password_hash, company_id, company_name, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	u.ID = uuid.NewString()
	_, err := r.q.ExecContext(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.CompanyID, u.CompanyName, u.IsAdmin, u.CreatedAt,
	)
	return err
}

// GetByEmail returns the account registered under the given email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `
		SELECT user_id, email, password_hash, company_id, company_name, is_admin, created_at
		FROM users
		WHERE email = $1
	`
	var u models.User
	err := r.q.QueryRowContext(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.CompanyID, &u.CompanyName, &u.IsAdmin, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
