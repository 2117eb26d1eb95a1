package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/condpush/internal/dialect"
	"github.com/roach88/condpush/internal/schema"
)

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Link tables carry a position column
const currentSchemaVersion = 1

// IDGenerator assigns IDs to instances saved without one.
type IDGenerator interface {
	NewID(entity string) string
}

// UUIDv7Generator produces time-ordered UUIDv7 identifiers, so the default
// ID order follows insertion order.
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7 string.
func (UUIDv7Generator) NewID(string) string {
	return uuid.Must(uuid.NewV7()).String()
}

// Store is a SQLite database holding the tables of one schema.Model.
type Store struct {
	db      *sql.DB
	model   *schema.Model
	dialect dialect.Dialect
	ids     IDGenerator
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator used for instances without an ID.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithDialect overrides the dialect capabilities. The database is always
// SQLite; this lets tests exercise the no-scale code path.
func WithDialect(d dialect.Dialect) Option {
	return func(s *Store) {
		s.dialect = d
	}
}

// WithLogger sets the logger for session events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open creates or opens a SQLite database at the given path and creates
// the model's tables.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, model *schema.Model, opts ...Option) (*Store, error) {
	s := &Store{
		model:   model,
		dialect: dialect.SQLite{},
		ids:     UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and ":memory:" databases
	// exist per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, DDL(model, s.dialect)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.db = db
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for translated queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Model returns the schema the store was opened with.
func (s *Store) Model() *schema.Model {
	return s.model
}

// Dialect returns the dialect capabilities in use.
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. This function is idempotent.
func applySchema(db *sql.DB, ddl string) error {
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// DDL returns the CREATE TABLE statements for a model.
func DDL(model *schema.Model, d dialect.Dialect) string {
	var b strings.Builder
	for _, e := range model.Entities() {
		cols := []string{schema.IDColumn + " TEXT PRIMARY KEY"}
		for _, f := range e.Fields {
			cols = append(cols, fmt.Sprintf("%s %s", f.Column, d.ColumnType(f)))
		}
		for _, r := range e.References {
			target, _ := model.Entity(r.Target)
			cols = append(cols, fmt.Sprintf("%s TEXT REFERENCES %s(%s)", r.Column, target.Table, schema.IDColumn))
		}
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\t%s\n);\n", e.Table, strings.Join(cols, ",\n\t"))

		for _, c := range e.Collections {
			if c.Join == "" {
				continue
			}
			elem, _ := model.Entity(c.Of)
			fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", c.Join)
			fmt.Fprintf(&b, "\t%s TEXT NOT NULL REFERENCES %s(%s),\n", c.OwnerColumn, e.Table, schema.IDColumn)
			fmt.Fprintf(&b, "\t%s TEXT NOT NULL REFERENCES %s(%s),\n", c.ElementColumn, elem.Table, schema.IDColumn)
			fmt.Fprintf(&b, "\tposition INTEGER NOT NULL,\n")
			fmt.Fprintf(&b, "\tPRIMARY KEY (%s, position)\n);\n", c.OwnerColumn)
		}
	}
	return b.String()
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
