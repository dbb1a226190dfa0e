package querysql

import (
	"fmt"
	"strings"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
)

// SQLCompiler compiles query requests to parameterized SQL for SQLite.
//
// Every store is a table named after the store; every schema field is a
// column of the same name. The generated SQL is what the SQLite backend
// executes and what the CLI prints next to each timing.
//
// CRITICAL: ALL queries include ORDER BY for deterministic results.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct {
	// Schemas maps store names to their schema. Field names are resolved
	// against it exactly as the in-memory store resolves them.
	Schemas map[string]entity.Schema
}

// NewSQLCompiler creates a compiler over the given store schemas.
func NewSQLCompiler(schemas map[string]entity.Schema) *SQLCompiler {
	return &SQLCompiler{Schemas: schemas}
}

// Compile converts a request to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(req query.Request) (string, []any, error) {
	b, err := c.Bind(req)
	if err != nil {
		return "", nil, err
	}
	return CompileBound(b)
}

// Bind resolves req against the compiler's schemas. Unknown store names
// yield UNKNOWN_STORE errors.
func (c *SQLCompiler) Bind(req query.Request) (*query.Bound, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	local, ok := c.Schemas[req.Store]
	if !ok {
		return nil, query.UnknownStore(req.Store)
	}
	var foreign *entity.Schema
	if req.Kind.IsJoin() {
		fs, ok := c.Schemas[req.Join.Store]
		if !ok {
			return nil, query.UnknownStore(req.Join.Store)
		}
		foreign = &fs
	}
	return query.Bind(req, local, foreign)
}

// CompileBound generates SQL for an already bound request.
//
// MANDATORY: Every query includes ORDER BY with COLLATE BINARY.
// MANDATORY: All values are parameterized.
func CompileBound(b *query.Bound) (string, []any, error) {
	if b == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	req := b.Request
	joined := b.JoinLocal != nil

	ref := func(col query.Column) string {
		if !joined {
			return quote(col.Field.Name)
		}
		table := req.Store
		if col.Foreign {
			table = req.Join.Store
		}
		return quote(table) + "." + quote(col.Field.Name)
	}
	localRef := func(f entity.Field) string {
		return ref(query.Column{Field: f})
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.Group != nil {
		sb.WriteString(selectItem(ref(*b.Group), b.Group.Field.Name, b.Group.Label))
		sb.WriteString(", COUNT(*) AS ")
		sb.WriteString(quote(query.CountColumn))
	} else {
		items := make([]string, len(b.Columns))
		for i, col := range b.Columns {
			items[i] = selectItem(ref(col), col.Field.Name, col.Label)
		}
		sb.WriteString(strings.Join(items, ", "))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(quote(req.Store))

	if joined {
		sb.WriteString(compileJoinOn(req, *b.JoinLocal, *b.JoinForeign))
	}

	params := make([]any, 0, len(b.Filters))
	if len(b.Filters) > 0 {
		conds := make([]string, len(b.Filters))
		for i, f := range b.Filters {
			param, err := irValueToParam(f.Value)
			if err != nil {
				return "", nil, fmt.Errorf("convert value for %s: %w", f.Field.Name, err)
			}
			conds[i] = localRef(f.Field) + " = ?"
			params = append(params, param)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if b.Group != nil {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(ref(*b.Group))
	}

	// MANDATORY: Always add ORDER BY
	sb.WriteString(" ORDER BY ")
	sb.WriteString(stableOrderKey(b, ref))

	return sb.String(), params, nil
}

// compileJoinOn builds the INNER JOIN clause. Reference columns have no
// type affinity, so for them the storage class is compared too: an
// integer id never matches a text label.
func compileJoinOn(req query.Request, local, foreign entity.Field) string {
	l := quote(req.Store) + "." + quote(local.Name)
	r := quote(req.Join.Store) + "." + quote(foreign.Name)
	on := l + " = " + r
	if local.Type == entity.TypeRef || foreign.Type == entity.TypeRef {
		on += " AND typeof(" + l + ") = typeof(" + r + ")"
	}
	return " INNER JOIN " + quote(req.Join.Store) + " ON " + on
}

// stableOrderKey returns the ORDER BY clause body.
// Uses COLLATE BINARY for deterministic text ordering.
func stableOrderKey(b *query.Bound, ref func(query.Column) string) string {
	if b.Group != nil {
		return ref(*b.Group) + " ASC COLLATE BINARY"
	}
	id := entity.Field{Name: entity.KeyField}
	key := ref(query.Column{Field: id}) + " ASC COLLATE BINARY"
	if b.JoinLocal != nil {
		key += ", " + ref(query.Column{Field: id, Foreign: true}) + " ASC COLLATE BINARY"
	}
	return key
}

func selectItem(expr, field, label string) string {
	if label == field && !strings.Contains(expr, ".") {
		return expr
	}
	return expr + " AS " + quote(label)
}

// quote renders an SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// irValueToParam converts an ir.IRValue to a Go native type for SQL parameter.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
