package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kemiz/fsgrid/internal/entity"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial catalog table
// 1 - Added index on fsgrid_stores(schema_name, schema_version)
const currentSchemaVersion = 1

// DefaultBatchSize is the number of rows inserted per prepared batch.
const DefaultBatchSize = 512

// Store is the SQLite comparison backend. Each registered store is a
// table named after it; queries are compiled by querysql and executed
// with ORDER BY so results match the in-memory store row for row.
type Store struct {
	db        *sql.DB
	batchSize int
	logger    *slog.Logger

	mu      sync.RWMutex
	schemas map[string]entity.Schema
}

// Option configures a Store.
type Option func(*Store)

// WithBatchSize sets the insert batch size used by Load.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically, then reloads
// the schemas of stores created by earlier runs.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection also
	// keeps ":memory:" databases alive for the life of the Store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:        db,
		batchSize: DefaultBatchSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		schemas:   make(map[string]entity.Schema),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.readCatalog(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Names returns the registered store names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schema returns the schema the named store was created with.
func (s *Store) Schema(name string) (entity.Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[name]
	return schema, ok
}

// Schemas returns a copy of every registered schema, keyed by store name.
func (s *Store) Schemas() map[string]entity.Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]entity.Schema, len(s.schemas))
	for name, schema := range s.schemas {
		out[name] = schema
	}
	return out
}

// Size returns the row count of the named store.
func (s *Store) Size(ctx context.Context, name string) (int, error) {
	if _, ok := s.Schema(name); !ok {
		return 0, fmt.Errorf("size: store %q is not registered", name)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("size %s: %w", name, err)
	}
	return n, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the catalog table if needed and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_fsgrid_stores_schema
		ON fsgrid_stores(schema_name, schema_version)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// fieldRecord is the persisted form of an entity.Field.
type fieldRecord struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed,omitempty"`
}

func encodeFields(fields []entity.Field) (string, error) {
	recs := make([]fieldRecord, len(fields))
	for i, f := range fields {
		recs[i] = fieldRecord{Name: f.Name, Type: f.Type.String(), Indexed: f.Indexed}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeFields(data string) ([]entity.Field, error) {
	var recs []fieldRecord
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		return nil, err
	}
	fields := make([]entity.Field, len(recs))
	for i, r := range recs {
		typ, err := entity.ParseType(r.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", r.Name, err)
		}
		fields[i] = entity.Field{Name: r.Name, Type: typ, Indexed: r.Indexed}
	}
	return fields, nil
}

// readCatalog loads the schemas recorded in fsgrid_stores.
func (s *Store) readCatalog() error {
	rows, err := s.db.Query(`
		SELECT name, schema_name, schema_version, fields
		FROM fsgrid_stores
		ORDER BY name ASC COLLATE BINARY
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var name, fields string
		var schema entity.Schema
		if err := rows.Scan(&name, &schema.Name, &schema.Version, &fields); err != nil {
			return fmt.Errorf("scan store: %w", err)
		}
		if schema.Fields, err = decodeFields(fields); err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}
		s.schemas[name] = schema
	}
	return rows.Err()
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
