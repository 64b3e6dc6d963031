package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage persists each category in its own table of one database file
// per front-end, keyed by the caller-assigned id.
type SQLiteStorage struct {
	path   string
	schema Schema

	mu    sync.RWMutex
	sqlDB *sql.DB
}

func NewSQLiteStorage(path string, schema Schema) *SQLiteStorage {
	return &SQLiteStorage{path: strings.TrimSpace(path), schema: schema}
}

// Open opens the database file and provisions all declared category tables.
// Calling Open on an already open storage only re-runs provisioning.
func (s *SQLiteStorage) Open(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("storage path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sqlDB == nil {
		cleanPath := filepath.Clean(s.path)
		if dir := filepath.Dir(cleanPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create queue dir: %w", err)
			}
		}
		dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
		sqlDB, err := sql.Open("sqlite", dsn)
		if err != nil {
			return fmt.Errorf("open sqlite db: %w", err)
		}
		// One writer at a time; every queue operation is a single statement.
		sqlDB.SetMaxOpenConns(1)
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("ping sqlite db: %w", err)
		}
		s.sqlDB = sqlDB
	}

	if err := s.provision(ctx); err != nil {
		return fmt.Errorf("provision queue schema %s: %w", s.schema.Name, err)
	}
	return nil
}

func (s *SQLiteStorage) provision(ctx context.Context) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS queue_schema (
	name TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	upgraded_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure schema table: %w", err)
	}

	var stored int
	err = tx.QueryRowContext(ctx, `SELECT version FROM queue_schema WHERE name = ?`, s.schema.Name).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		stored = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}
	if stored > s.schema.Version {
		return fmt.Errorf("%w: stored %d, requested %d", ErrSchemaDowngrade, stored, s.schema.Version)
	}

	for _, category := range s.schema.Categories {
		stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	payload BLOB,
	auth_token TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
)`, s.schema.TableName(category))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create container %s: %w", category, err)
		}
	}

	if stored < s.schema.Version {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO queue_schema (name, version, upgraded_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET version = excluded.version, upgraded_at = excluded.upgraded_at
`, s.schema.Name, s.schema.Version, time.Now().UTC().UnixMilli()); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStorage) GetAll(ctx context.Context, category string) ([]Entry, error) {
	db, err := s.dbFor(category)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, payload, auth_token, created_at
FROM %s
ORDER BY id
`, s.schema.TableName(category)))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", category, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &payload, &e.AuthToken, &createdAt); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", category, err)
		}
		e.Category = category
		if len(payload) > 0 {
			e.Payload = payload
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", category, err)
	}
	return entries, nil
}

func (s *SQLiteStorage) Put(ctx context.Context, entry Entry) error {
	db, err := s.dbFor(entry.Category)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, payload, auth_token, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, s.schema.TableName(entry.Category)),
		entry.ID,
		[]byte(entry.Payload),
		entry.AuthToken,
		entry.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", entry.Category, entry.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, category, id string) error {
	db, err := s.dbFor(category)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.schema.TableName(category)), id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", category, id, err)
	}
	return nil
}

// Close releases the SQLite connection.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sqlDB == nil {
		return nil
	}
	err := s.sqlDB.Close()
	s.sqlDB = nil
	return err
}

func (s *SQLiteStorage) dbFor(category string) (*sql.DB, error) {
	if !s.schema.Has(category) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sqlDB == nil {
		return nil, ErrNotOpen
	}
	return s.sqlDB, nil
}
