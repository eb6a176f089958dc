package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alimasry/go-page-editor/schema"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

const createTableSQL = `CREATE TABLE IF NOT EXISTS pages (
	id          TEXT PRIMARY KEY,
	schema      JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'draft',
	revision    BIGINT NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

// PostgresStore is a PostgreSQL implementation of PageStore. The schema is
// stored as JSONB; saves are a conditional UPDATE on the revision column.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres opens a lib/pq connection pool and checks it is reachable.
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate creates the pages table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("migrate pages: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, id string, cs schema.ContentSchema) error {
	data, err := cs.Encode()
	if err != nil {
		return fmt.Errorf("create %q: %w", id, err)
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pages (id, schema, status, revision, created_at, updated_at) VALUES ($1, $2, $3, 1, $4, $4)`,
		id, data, string(StatusDraft), now)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("create %q: %w", id, ErrExists)
	}
	if err != nil {
		return fmt.Errorf("create %q: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*Page, error) {
	var (
		data []byte
		p    = Page{ID: id}
		st   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT schema, status, revision, created_at, updated_at FROM pages WHERE id = $1`, id).
		Scan(&data, &st, &p.Revision, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", id, err)
	}
	p.Status = Status(st)
	if p.Schema, err = schema.Decode(data); err != nil {
		return nil, fmt.Errorf("load %q: %w", id, err)
	}
	return &p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]PageInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, revision, COALESCE(schema->'metadata'->>'lastEditedBy', ''), updated_at
		 FROM pages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var result []PageInfo
	for rows.Next() {
		var info PageInfo
		var st string
		if err := rows.Scan(&info.ID, &st, &info.Revision, &info.LastEditedBy, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		info.Status = Status(st)
		result = append(result, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) Save(ctx context.Context, id string, cs schema.ContentSchema, expectedRevision int64) (int64, error) {
	data, err := cs.Encode()
	if err != nil {
		return 0, fmt.Errorf("save %q: %w", id, err)
	}
	var next int64
	err = s.db.QueryRowContext(ctx,
		`UPDATE pages SET schema = $1, revision = revision + 1, updated_at = $2
		 WHERE id = $3 AND revision = $4 RETURNING revision`,
		data, s.now(), id, expectedRevision).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("save %q: %w", id, err)
	}

	// No row matched: either the page is gone or the revision moved.
	var current int64
	err = s.db.QueryRowContext(ctx, `SELECT revision FROM pages WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("save %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("save %q: %w", id, err)
	}
	return 0, fmt.Errorf("save %q at revision %d (current %d): %w", id, expectedRevision, current, ErrConflict)
}
