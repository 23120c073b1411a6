package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hitoshi/npoportal/internal/model"
	"github.com/stretchr/testify/require"
)

func TestPostgresSessionRepo_CreateAndFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresSessionRepo(db)
	now := time.Now()
	repo.now = func() time.Time { return now }

	session := &model.Session{
		ID: "sess-1", AccountID: "acc-1", Email: "jane@example.org", Role: model.RoleAdmin,
		FirstName: "Jane", LastName: "Doe", ExpiresAt: now.Add(24 * time.Hour), CreatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("sess-1", "acc-1", "jane@example.org", "admin", "Jane", "Doe", session.ExpiresAt, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), session))

	rows := sqlmock.NewRows([]string{"id", "account_id", "email", "role", "first_name", "last_name", "expires_at", "created_at"}).
		AddRow("sess-1", "acc-1", "jane@example.org", "admin", "Jane", "Doe", session.ExpiresAt, now)
	mock.ExpectQuery(`FROM sessions WHERE id = \$1 AND expires_at > \$2`).
		WithArgs("sess-1", now).
		WillReturnRows(rows)

	got, err := repo.FindByID(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, got.Role)
	require.Equal(t, "acc-1", got.AccountID)
}

func TestPostgresSessionRepo_FindByID_Expired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresSessionRepo(db)

	mock.ExpectQuery(`FROM sessions`).WithArgs("old", sqlmock.AnyArg()).WillReturnError(sql.ErrNoRows)

	got, err := repo.FindByID(context.Background(), "old")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPostgresSessionRepo_DeleteByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresSessionRepo(db)

	mock.ExpectExec(`DELETE FROM sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteByID(context.Background(), "sess-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepo_DeleteByAccountID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresSessionRepo(db)

	mock.ExpectExec(`DELETE FROM sessions WHERE account_id = \$1`).
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.DeleteByAccountID(context.Background(), "acc-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
