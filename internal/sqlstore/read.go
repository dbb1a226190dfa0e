package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"slices"

	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
	"github.com/kemiz/fsgrid/internal/querysql"
)

// Compile returns the SQL and parameters req executes as.
func (s *Store) Compile(req query.Request) (string, []any, error) {
	return querysql.NewSQLCompiler(s.Schemas()).Compile(req)
}

// Query executes req and returns its rows, labelled exactly as the
// in-memory store labels them.
//
// Rows are read eagerly: the sequence cannot report a scan error, and the
// single connection stays free for other callers once Query returns.
func (s *Store) Query(ctx context.Context, req query.Request) (iter.Seq[query.Row], error) {
	b, err := querysql.NewSQLCompiler(s.Schemas()).Bind(req)
	if err != nil {
		return nil, err
	}
	stmt, params, err := querysql.CompileBound(b)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", req.Kind, err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", req.Kind, err)
	}
	defer rows.Close()

	out, err := scanRows(rows, b.Labels())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", req.Kind, err)
	}
	return slices.Values(out), nil
}

func scanRows(rows *sql.Rows, labels []string) ([]query.Row, error) {
	var out []query.Row
	raw := make([]any, len(labels))
	ptrs := make([]any, len(labels))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		values := make([]ir.IRValue, len(raw))
		for i, v := range raw {
			iv, err := fromColumn(v)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", labels[i], err)
			}
			values[i] = iv
		}
		out = append(out, query.Row{Columns: labels, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// fromColumn converts a scanned SQLite value to an IRValue.
func fromColumn(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case nil:
		return ir.IRNull{}, nil
	case int64:
		return ir.IRInt(val), nil
	case string:
		return ir.IRString(val), nil
	case []byte:
		return ir.IRString(val), nil
	default:
		return nil, fmt.Errorf("unsupported column value %T", v)
	}
}
