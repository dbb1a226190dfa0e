package runner

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kemiz/fsgrid/internal/query"
)

// BenchOptions controls a bench run.
type BenchOptions struct {
	// Workers is the number of concurrent goroutines. Default 1.
	Workers int

	// Iterations is how many times each worker runs the whole workload.
	// Default 1.
	Iterations int

	// QPS limits the combined query rate across workers; 0 is unlimited.
	QPS float64
}

// QueryStats aggregates the latencies of one named query.
type QueryStats struct {
	Name  string        `json:"name"`
	Kind  query.Kind    `json:"kind"`
	Count int           `json:"count"`
	Rows  int           `json:"rows"`
	Min   time.Duration `json:"min"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// Report is the outcome of a bench run.
type Report struct {
	RunID   string        `json:"run_id"`
	Workers int           `json:"workers"`
	Total   int           `json:"total"`
	Elapsed time.Duration `json:"elapsed"`
	Queries []QueryStats  `json:"queries"`
}

// Bench runs every query Iterations times from each of Workers
// goroutines. The first query error cancels the run and is returned.
func (r *Runner) Bench(ctx context.Context, queries []query.Named, opts BenchOptions) (*Report, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Iterations <= 0 {
		opts.Iterations = 1
	}
	var limiter *rate.Limiter
	if opts.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.QPS), opts.Workers)
	}

	var mu sync.Mutex
	samples := make([][]time.Duration, len(queries))
	rows := make([]int, len(queries))

	report := &Report{RunID: r.newID(), Workers: opts.Workers}
	r.logger.Info("bench started",
		slog.String("run_id", report.RunID),
		slog.Int("workers", opts.Workers),
		slog.Int("iterations", opts.Iterations),
		slog.Float64("qps", opts.QPS))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for range opts.Workers {
		g.Go(func() error {
			for range opts.Iterations {
				for i, n := range queries {
					if limiter != nil {
						if err := limiter.Wait(gctx); err != nil {
							return err
						}
					}
					res, err := r.Run(gctx, n)
					if err != nil {
						return err
					}
					mu.Lock()
					samples[i] = append(samples[i], res.Elapsed)
					rows[i] += len(res.Rows)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bench %s: %w", report.RunID, err)
	}
	report.Elapsed = time.Since(start)

	for i, n := range queries {
		qs := summarize(samples[i])
		qs.Name, qs.Kind, qs.Rows = n.Name, n.Request.Kind, rows[i]
		report.Queries = append(report.Queries, qs)
		report.Total += qs.Count
	}
	r.logger.Info("bench finished",
		slog.String("run_id", report.RunID),
		slog.Int("queries", report.Total),
		slog.Duration("elapsed", report.Elapsed))
	return report, nil
}

// summarize computes latency statistics; percentiles use nearest rank.
func summarize(ds []time.Duration) QueryStats {
	if len(ds) == 0 {
		return QueryStats{}
	}
	sorted := slices.Clone(ds)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return QueryStats{
		Count: len(sorted),
		Min:   sorted[0],
		Mean:  total / time.Duration(len(sorted)),
		P50:   percentile(sorted, 50),
		P99:   percentile(sorted, 99),
		Max:   sorted[len(sorted)-1],
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
