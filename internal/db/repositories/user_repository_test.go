package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var userCols = []string{"id", "username", "password_hash", "last_login_at", "created_at", "updated_at"}

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow("user-1", "admin", "$2a$10$hash", nil, time.Now(), time.Now())
}

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	p, mock := newMockProvider(t)
	return NewUserRepository(p), mock
}

// ---------------------------------------------------------------------------
// GetUserByUsername
// ---------------------------------------------------------------------------

func TestGetUserByUsername_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM admin_users.*WHERE username").
		WithArgs("admin").
		WillReturnRows(sampleUserRow())

	user, err := repo.GetUserByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.ID != "user-1" || user.PasswordHash != "$2a$10$hash" {
		t.Errorf("user = %+v", user)
	}
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM admin_users.*WHERE username").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(userCols))

	user, err := repo.GetUserByUsername(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %v", user)
	}
}

func TestGetUserByUsername_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM admin_users").WillReturnError(errDB)

	if _, err := repo.GetUserByUsername(context.Background(), "admin"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetUserByID
// ---------------------------------------------------------------------------

func TestGetUserByID_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM admin_users.*WHERE id").
		WithArgs("user-1").
		WillReturnRows(sampleUserRow())

	user, err := repo.GetUserByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil || user.Username != "admin" {
		t.Errorf("user = %+v, want admin", user)
	}
}

// ---------------------------------------------------------------------------
// UpsertUser / RecordLogin
// ---------------------------------------------------------------------------

func TestUpsertUser_ReturnsRow(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("INSERT INTO admin_users.*ON CONFLICT \\(username\\) DO UPDATE").
		WithArgs(sqlmock.AnyArg(), "admin", "$2a$10$hash", sqlmock.AnyArg()).
		WillReturnRows(sampleUserRow())

	user, err := repo.UpsertUser(context.Background(), "admin", "$2a$10$hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Username != "admin" {
		t.Errorf("Username = %q, want admin", user.Username)
	}
}

func TestUpsertUser_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("INSERT INTO admin_users").WillReturnError(errDB)

	if _, err := repo.UpsertUser(context.Background(), "admin", "hash"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestRecordLogin(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("UPDATE admin_users SET last_login_at").
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RecordLogin(context.Background(), "user-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
