package repositories

import (
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/doubleh-portfolio/portfolio-api/internal/db"
)

var errDB = errors.New("db error")

// newMockProvider returns a Provider over sqlmock. Expectations are verified at cleanup.
func newMockProvider(t *testing.T) (db.Provider, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		raw.Close()
	})
	return db.Static(sqlx.NewDb(raw, "sqlmock")), mock
}
