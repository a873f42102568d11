// Package snapshot stores serialized dock layouts for the SaveLayout and
// LoadLayout commands. Payloads are opaque bytes; the dock package owns the
// encoding.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Load when no snapshot exists under the key.
var ErrNotFound = errors.New("snapshot not found")

// Store persists named layout snapshots per session.
type Store interface {
	Save(ctx context.Context, session, name string, data []byte) error
	Load(ctx context.Context, session, name string) ([]byte, error)
	List(ctx context.Context, session string) ([]string, error)
	Delete(ctx context.Context, session, name string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver     string // memory (default), redis, sqlite
	RedisURL   string // redis://host:port/db
	SQLitePath string
}

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return OpenRedis(ctx, cfg.RedisURL)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown snapshot driver %q", cfg.Driver)
	}
}

func validateKey(session, name string) error {
	if strings.TrimSpace(session) == "" {
		return fmt.Errorf("session is required")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("snapshot name is required")
	}
	return nil
}
