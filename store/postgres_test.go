package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewPostgresStore(db)
	s.now = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return db, mock, s
}

func TestPostgresStore_Migrate(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS pages`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectExec(`INSERT INTO pages`).
		WithArgs("p1", sqlmock.AnyArg(), "draft", s.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Create(context.Background(), "p1", testSchema("alice")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateDuplicate(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectExec(`INSERT INTO pages`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value"})

	err := s.Create(context.Background(), "p1", testSchema("alice"))
	assert.ErrorIs(t, err, ErrExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load(t *testing.T) {
	_, mock, s := setupMockDB(t)
	data, err := testSchema("alice").Encode()
	require.NoError(t, err)
	created := time.Unix(1600000000, 0).UTC()

	rows := sqlmock.NewRows([]string{"schema", "status", "revision", "created_at", "updated_at"}).
		AddRow(data, "published", int64(7), created, s.now())
	mock.ExpectQuery(`SELECT schema, status, revision`).WithArgs("p1").WillReturnRows(rows)

	p, err := s.Load(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, StatusPublished, p.Status)
	assert.Equal(t, int64(7), p.Revision)
	assert.Equal(t, created, p.CreatedAt)
	assert.Equal(t, "alice", p.Schema.Metadata.LastEditedBy)
	require.Len(t, p.Schema.Sections, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadNotFound(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectQuery(`SELECT schema`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	p, err := s.Load(context.Background(), "nope")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	_, mock, s := setupMockDB(t)
	rows := sqlmock.NewRows([]string{"id", "status", "revision", "last_edited_by", "updated_at"}).
		AddRow("a", "draft", int64(1), "alice", s.now()).
		AddRow("b", "submitted", int64(3), "", s.now())
	mock.ExpectQuery(`SELECT id, status, revision`).WillReturnRows(rows)

	pages, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, PageInfo{ID: "a", Status: StatusDraft, Revision: 1, LastEditedBy: "alice", UpdatedAt: s.now()}, pages[0])
	assert.Equal(t, StatusSubmitted, pages[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectQuery(`UPDATE pages SET schema`).
		WithArgs(sqlmock.AnyArg(), s.now(), "p1", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(3)))

	rev, err := s.Save(context.Background(), "p1", testSchema("bob"), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rev)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveConflict(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectQuery(`UPDATE pages SET schema`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT revision FROM pages`).WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(5)))

	_, err := s.Save(context.Background(), "p1", testSchema("bob"), 2)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "current 5")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveNotFound(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectQuery(`UPDATE pages SET schema`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT revision FROM pages`).WillReturnError(sql.ErrNoRows)

	_, err := s.Save(context.Background(), "gone", testSchema("bob"), 1)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DriverError(t *testing.T) {
	_, mock, s := setupMockDB(t)
	mock.ExpectQuery(`SELECT schema`).WillReturnError(errors.New("connection reset"))

	_, err := s.Load(context.Background(), "p1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
