package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS layout_snapshots (
	session    TEXT    NOT NULL,
	name       TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (session, name)
)`

// SQLiteStore keeps snapshots in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. ":memory:" is allowed.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A :memory: database lives per connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, session, name string, data []byte) error {
	if err := validateKey(session, name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO layout_snapshots (session, name, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session, name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		session, name, data, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", session, name, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, session, name string) ([]byte, error) {
	if err := validateKey(session, name); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM layout_snapshots WHERE session = ? AND name = ?`, session, name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot %s/%s: %w", session, name, err)
	}
	return data, nil
}

func (s *SQLiteStore) List(ctx context.Context, session string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM layout_snapshots WHERE session = ? ORDER BY name`, session)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan snapshot name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, session, name string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM layout_snapshots WHERE session = ? AND name = ?`, session, name); err != nil {
		return fmt.Errorf("delete snapshot %s/%s: %w", session, name, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
