package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

// SQL dialects supported by SQLStorage.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type sqlQueries struct {
	create string
	get    string
	upsert string
	delete string
}

var dialectQueries = map[string]sqlQueries{
	DialectSQLite: {
		create: `CREATE TABLE IF NOT EXISTS healthcal_kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		get: `SELECT value FROM healthcal_kv WHERE key = ?`,
		upsert: `INSERT INTO healthcal_kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		delete: `DELETE FROM healthcal_kv WHERE key = ?`,
	},
	DialectPostgres: {
		create: `CREATE TABLE IF NOT EXISTS healthcal_kv (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		get: `SELECT value FROM healthcal_kv WHERE key = $1`,
		upsert: `INSERT INTO healthcal_kv (key, value, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		delete: `DELETE FROM healthcal_kv WHERE key = $1`,
	},
}

// SQLStorage keeps values in a single key-value table.
type SQLStorage struct {
	db      *sql.DB
	dialect string
	q       sqlQueries
}

// OpenSQLStorage opens a database and creates the table if needed.
// For SQLite the DSN is a file path; for Postgres it is a lib/pq
// connection string.
func OpenSQLStorage(ctx context.Context, dialect, dsn string) (*SQLStorage, error) {
	q, ok := dialectQueries[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	source := dsn
	if dialect == DialectSQLite {
		if dsn == "" {
			dsn = filepath.Join(DefaultDataDir(), "healthcal.db")
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		source = dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open(dialect, source)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, q.create); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating token table: %w", err)
	}

	return &SQLStorage{db: db, dialect: dialect, q: q}, nil
}

// Dialect returns the SQL dialect in use.
func (s *SQLStorage) Dialect() string {
	return s.dialect
}

func (s *SQLStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.q.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	return value, nil
}

func (s *SQLStorage) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.q.upsert, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("upserting token: %w", err)
	}
	return nil
}

func (s *SQLStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.q.delete, key); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}
