package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/namehist/internal/history"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - names + updates tables with identifier indexes
const currentSchemaVersion = 1

// Defaults applied by Config.withDefaults.
const (
	DefaultBusyTimeout    = 16 * time.Second
	DefaultPoolTimeout    = 32 * time.Second
	DefaultMaxConnections = 2
)

// ErrPoolTimeout is wrapped by the storage error returned when no pooled
// connection became available within Config.PoolTimeout.
var ErrPoolTimeout = errors.New("timed out waiting for a database connection")

// Config holds the parameters for opening a Store.
type Config struct {
	// Path of the SQLite database file. Created if missing.
	Path string

	// BusyTimeout bounds how long a statement waits on a locked database.
	BusyTimeout time.Duration

	// PoolTimeout bounds how long an operation waits for a pooled connection.
	PoolTimeout time.Duration

	// MaxConnections caps the pool.
	MaxConnections int
}

func (c Config) withDefaults() Config {
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}
	if c.PoolTimeout <= 0 {
		c.PoolTimeout = DefaultPoolTimeout
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	return c
}

// DSN renders the go-sqlite3 connection string for c.
func (c Config) DSN() string {
	c = c.withDefaults()
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	return "file:" + c.Path + "?" + q.Encode()
}

// Store provides durable storage for name histories and reconciliation
// metadata. Safe for concurrent use.
type Store struct {
	db          *sql.DB
	poolTimeout time.Duration
}

// Open creates or opens the SQLite database described by cfg.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, history.NewStorage("open database", errors.New("empty database path"))
	}
	cfg = cfg.withDefaults()

	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, history.NewStorage("open database", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, history.NewStorage("connect to database", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, history.NewStorage("apply schema", err)
	}

	return newWithDB(db, cfg.PoolTimeout), nil
}

func newWithDB(db *sql.DB, poolTimeout time.Duration) *Store {
	return &Store{db: db, poolTimeout: poolTimeout}
}

// Close closes the connection pool.
// Callers drain in-flight operations first.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks that a connection can be acquired and used.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		return history.NewStorage("ping database", err)
	}
	return nil
}

// conn acquires a pooled connection, waiting at most poolTimeout.
func (s *Store) conn(ctx context.Context) (*sql.Conn, error) {
	actx := ctx
	if s.poolTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.poolTimeout)
		defer cancel()
	}

	conn, err := s.db.Conn(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, history.NewStorage("acquire connection",
				fmt.Errorf("%w after %s", ErrPoolTimeout, s.poolTimeout))
		}
		return nil, history.NewStorage("acquire connection", err)
	}
	return conn, nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// runMigrations records the schema version and refuses databases written by
// a newer release.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d",
			version, currentSchemaVersion)
	}

	if version == currentSchemaVersion {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
