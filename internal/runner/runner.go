// Package runner executes named queries against a backend with timing.
// Run is stateless per call and never holds more than one page of rows;
// Bench repeats a workload from concurrent workers and aggregates
// latencies.
package runner

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kemiz/fsgrid/internal/metrics"
	"github.com/kemiz/fsgrid/internal/query"
	"github.com/kemiz/fsgrid/internal/querysql"
)

// Backend executes query requests. *store.Catalog and *sqlstore.Store
// are backends.
type Backend interface {
	Query(ctx context.Context, req query.Request) (iter.Seq[query.Row], error)
}

// Result is the outcome of one timed query.
type Result struct {
	Name        string        `json:"name"`
	Request     query.Request `json:"request"`
	Fingerprint string        `json:"fingerprint"`
	SQL         string        `json:"sql,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	Columns     []string      `json:"columns"`
	Rows        []query.Row   `json:"rows"`
	Truncated   bool          `json:"truncated"`
}

// Runner runs queries against one backend.
type Runner struct {
	backend  Backend
	compiler *querysql.SQLCompiler
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithCompiler attaches the SQL text of each query to its result.
func WithCompiler(c *querysql.SQLCompiler) Option {
	return func(r *Runner) { r.compiler = c }
}

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records query timings.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithIDGenerator replaces the run id source.
func WithIDGenerator(f func() string) Option {
	return func(r *Runner) {
		if f != nil {
			r.newID = f
		}
	}
}

// New creates a Runner over backend.
func New(backend Backend, opts ...Option) *Runner {
	r := &Runner{
		backend: backend,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:   NewRunID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRunID returns a time-ordered UUIDv7.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewRunID returns an id for a query session.
func (r *Runner) NewRunID() string {
	return r.newID()
}

// Run executes one query and returns at most its page size of rows.
// Truncated reports that more rows were available. Errors are returned
// as is; there are no retries.
func (r *Runner) Run(ctx context.Context, n query.Named) (*Result, error) {
	res := &Result{Name: n.Name, Request: n.Request}
	fp, err := n.Request.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", n.Name, err)
	}
	res.Fingerprint = fp
	if r.compiler != nil {
		if sql, _, err := r.compiler.Compile(n.Request); err == nil {
			res.SQL = sql
		}
	}

	limit := n.Request.Limit()
	start := time.Now()
	seq, err := r.backend.Query(ctx, n.Request)
	if err != nil {
		r.metrics.ObserveQuery(n.Request.Kind, 0, time.Since(start), err)
		return nil, fmt.Errorf("run %s: %w", n.Name, err)
	}
	for row := range seq {
		if len(res.Rows) == limit {
			res.Truncated = true
			break
		}
		res.Rows = append(res.Rows, row)
	}
	res.Elapsed = time.Since(start)
	if len(res.Rows) > 0 {
		res.Columns = res.Rows[0].Columns
	}

	r.metrics.ObserveQuery(n.Request.Kind, len(res.Rows), res.Elapsed, nil)
	r.logger.Debug("query executed",
		slog.String("name", n.Name),
		slog.String("kind", string(n.Request.Kind)),
		slog.Int("rows", len(res.Rows)),
		slog.Bool("truncated", res.Truncated),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

// RunAll runs queries in order and stops at the first error.
func (r *Runner) RunAll(ctx context.Context, queries []query.Named) ([]*Result, error) {
	out := make([]*Result, 0, len(queries))
	for _, n := range queries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := r.Run(ctx, n)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}
