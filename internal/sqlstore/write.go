package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
	"github.com/kemiz/fsgrid/internal/store"
)

// Register creates the table for a store and records its schema.
// Registering the same name again with an identical schema is a no-op.
func (s *Store) Register(ctx context.Context, name string, schema entity.Schema) error {
	if name == "" {
		return fmt.Errorf("register: store name is required")
	}
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	fields, err := encodeFields(schema.Fields)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.schemas[name]; ok {
		prev, _ := encodeFields(existing.Fields)
		if prev != fields || existing.Name != schema.Name || existing.Version != schema.Version {
			return fmt.Errorf("register: store %q already registered with a different schema", name)
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range tableDDL(name, schema) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO fsgrid_stores (name, schema_name, schema_version, fields)
		VALUES (?, ?, ?, ?)
	`, name, schema.Name, schema.Version, fields)
	if err != nil {
		return fmt.Errorf("record store %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.schemas[name] = schema
	return nil
}

// tableDDL returns the statements that create a store's table and the
// indexes for its indexed fields. Reference fields are declared without
// a type so SQLite keeps each value's storage class as bound.
func tableDDL(name string, schema entity.Schema) []string {
	cols := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		col := quote(f.Name)
		switch {
		case f.Name == entity.KeyField:
			col += " INTEGER PRIMARY KEY"
		case f.Type == entity.TypeInt:
			col += " INTEGER"
		case f.Type == entity.TypeString:
			col += " TEXT"
		}
		cols[i] = col
	}

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + quote(name) + " (" + strings.Join(cols, ", ") + ")",
	}
	for _, f := range schema.Indexed() {
		if f.Name == entity.KeyField {
			continue
		}
		idx := quote("idx_" + name + "_" + f.Name)
		stmts = append(stmts, "CREATE INDEX IF NOT EXISTS "+idx+" ON "+quote(name)+" ("+quote(f.Name)+")")
	}
	return stmts
}

// Load inserts entities into the named store in a single transaction.
// A duplicate id replaces the earlier row. A malformed entity aborts the
// load and leaves the table unchanged.
func (s *Store) Load(ctx context.Context, name string, seq iter.Seq[entity.Entity]) (store.LoadStats, error) {
	schema, ok := s.Schema(name)
	if !ok {
		return store.LoadStats{}, query.UnknownStore(name)
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.LoadStats{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	cols := make([]string, len(schema.Fields))
	marks := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = quote(f.Name)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO "+quote(name)+
		" ("+strings.Join(cols, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return store.LoadStats{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	stats := store.LoadStats{}
	args := make([]any, len(schema.Fields))
	for e := range seq {
		if stats.Count%s.batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return store.LoadStats{}, fmt.Errorf("load: %w", err)
			}
		}
		if err := insert(ctx, stmt, schema, e, args); err != nil {
			return store.LoadStats{}, fmt.Errorf("load: entity %d: %w", stats.Count, err)
		}
		stats.Count++
	}
	stats.Flushes = (stats.Count + s.batchSize - 1) / s.batchSize

	if err := tx.Commit(); err != nil {
		return store.LoadStats{}, fmt.Errorf("commit transaction: %w", err)
	}
	stats.Elapsed = time.Since(start)

	s.logger.Debug("load committed",
		slog.String("store", name),
		slog.Int("count", stats.Count),
		slog.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

func insert(ctx context.Context, stmt *sql.Stmt, schema entity.Schema, e entity.Entity, args []any) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", store.ErrMalformedEntity)
	}
	if err := schema.Check(e); err != nil {
		return fmt.Errorf("%w: %v", store.ErrMalformedEntity, err)
	}
	for i, f := range schema.Fields {
		v, _ := e.Get(f.Name)
		param, err := toParam(v)
		if err != nil {
			return fmt.Errorf("%w: field %s: %v", store.ErrMalformedEntity, f.Name, err)
		}
		args[i] = param
	}
	_, err := stmt.ExecContext(ctx, args...)
	return err
}

func toParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

// quote renders an SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
