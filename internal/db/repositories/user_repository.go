// Package repositories implements the data access layer (repository pattern) for the portfolio API.
// Each repository type encapsulates all database queries for one collection.
// Handlers never issue SQL directly; every query goes through this layer, which keeps query logic
// testable in isolation with sqlmock.
//
// Repositories resolve their handle through db.Provider on every call, so a database that comes
// up after the server started is picked up without a restart.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/models"
)

const adminUserColumns = `id, username, password_hash, last_login_at, created_at, updated_at`

// UserRepository handles dashboard account operations
type UserRepository struct {
	db db.Provider
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(p db.Provider) *UserRepository {
	return &UserRepository{db: p}
}

// GetUserByUsername retrieves an account by username. It returns nil, nil when
// no such account exists.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	user := &models.AdminUser{}
	err = conn.GetContext(ctx, user,
		`SELECT `+adminUserColumns+` FROM admin_users WHERE username = $1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves an account by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.AdminUser, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	user := &models.AdminUser{}
	err = conn.GetContext(ctx, user,
		`SELECT `+adminUserColumns+` FROM admin_users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpsertUser creates the account or replaces the password hash of an existing
// account with the same username.
func (r *UserRepository) UpsertUser(ctx context.Context, username, passwordHash string) (*models.AdminUser, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &models.AdminUser{}
	err = conn.GetContext(ctx, user, `
		INSERT INTO admin_users (id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (username) DO UPDATE
			SET password_hash = EXCLUDED.password_hash,
			    updated_at = EXCLUDED.updated_at
		RETURNING `+adminUserColumns,
		uuid.New().String(), username, passwordHash, now,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RecordLogin stamps last_login_at for the account
func (r *UserRepository) RecordLogin(ctx context.Context, id string) error {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = conn.ExecContext(ctx,
		`UPDATE admin_users SET last_login_at = $1, updated_at = $1 WHERE id = $2`, now, id)
	return err
}
