// Package sqlite provides SQLite-backed persistence for the event journal,
// the task read model, and the notification outbox.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/event"
	sqlitemigrate "github.com/relayforge/taskrelay/internal/platform/storage/sqlitemigrate"
	"github.com/relayforge/taskrelay/internal/storage"
	"github.com/relayforge/taskrelay/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence implementing storage.Store.
type Store struct {
	sqlDB          *sql.DB
	upcaster       *event.Upcaster
	projection     storage.ProjectionFunc
	outboxPolicy   storage.OutboxPolicyFunc
	defaultChannel string
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Option configures store behavior at open time.
type Option func(*Store)

// WithProjection folds each committed event into the task read model inside
// the append transaction.
func WithProjection(projection storage.ProjectionFunc) Option {
	return func(s *Store) {
		s.projection = projection
	}
}

// WithOutboxPolicy enqueues the outbox entries each committed event derives,
// inside the append transaction.
func WithOutboxPolicy(policy storage.OutboxPolicyFunc) Option {
	return func(s *Store) {
		s.outboxPolicy = policy
	}
}

// WithDefaultChannel sets the default notification channel handed to the
// outbox policy.
func WithDefaultChannel(channel string) Option {
	return func(s *Store) {
		s.defaultChannel = channel
	}
}

// WithUpcaster overrides the schema upcaster applied to loaded events.
func WithUpcaster(upcaster *event.Upcaster) Option {
	return func(s *Store) {
		s.upcaster = upcaster
	}
}

// Open opens a task-session SQLite store at the provided path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{
		sqlDB:    sqlDB,
		upcaster: event.NewUpcaster(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}
