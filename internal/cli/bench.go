package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kemiz/fsgrid/internal/loader"
	"github.com/kemiz/fsgrid/internal/metrics"
	"github.com/kemiz/fsgrid/internal/querysql"
	"github.com/kemiz/fsgrid/internal/runner"
	"github.com/kemiz/fsgrid/internal/sqlstore"
	"github.com/kemiz/fsgrid/internal/store"
)

// Bench backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Count        int
	Workers      int
	Iterations   int
	QPS          float64
	Seed         uint64
	Backend      string
	Database     string
	Workload     string
	Params       map[string]string
	DataDir      string
	Partitions   int
	Buffer       int
	PageSize     int
	SectorLabels bool

	// RunID overrides the generated run id (for testing).
	RunID func() string
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	return newBenchCommand(&BenchOptions{RootOptions: rootOpts})
}

func newBenchCommand(opts *BenchOptions) *cobra.Command {
	def := opts.Config

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load and run a workload in-process",
		Long: `Load --count generated entities into a fresh backend, then run the
workload --iterations times from each of --workers goroutines and print
per-query latency statistics.

The sqlite backend executes the same requests as SQL for comparison.

Example:
  fsgrid bench --count 100000 --workers 8 --iterations 20
  fsgrid bench --backend sqlite --qps 500 --seed 1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", def.Count, "number of entities to generate")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "concurrent workers")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", 10, "workload repetitions per worker")
	cmd.Flags().Float64Var(&opts.QPS, "qps", 0, "combined query rate limit (0: unlimited)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (default: unseeded)")
	cmd.Flags().StringVar(&opts.Backend, "backend", BackendMemory, "backend (memory|sqlite)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite file for the sqlite backend (default: temporary)")
	cmd.Flags().StringVar(&opts.Workload, "workload", "", "workload file (default: built-in)")
	cmd.Flags().StringToStringVar(&opts.Params, "param", nil, "placeholder value, name=value")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", def.DataDir, "directory holding currency_codes.txt and sectors.txt")
	cmd.Flags().IntVar(&opts.Partitions, "partitions", def.Partitions, "entity store partitions")
	cmd.Flags().IntVar(&opts.Buffer, "buffer", def.Buffer, "load buffer size per flush")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", def.PageSize, "page size when the workload sets none")
	cmd.Flags().BoolVar(&opts.SectorLabels, "sector-labels", false, "use the v1 schema where sector is a label")

	return cmd
}

// benchBackend is a loaded backend ready to query.
type benchBackend struct {
	sink     loader.Sink
	backend  runner.Backend
	compiler *querysql.SQLCompiler
	close    func() error
}

func runBench(cmd *cobra.Command, opts *BenchOptions) error {
	cfg := opts.Config
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stopProfiler, err := startProfiler(cfg.PyroscopeAddr, "bench", logger)
	if err != nil {
		return err
	}
	defer stopProfiler()

	pools, err := loadPools(flagOr(cmd, "data-dir", opts.DataDir, cfg.DataDir))
	if err != nil {
		return err
	}
	gen := newGenerator(cmd, pools, opts.Seed)
	gen.SectorLabels = opts.SectorLabels

	w, err := loadWorkload(opts.Workload)
	if err != nil {
		return err
	}
	if w.PageSize == 0 {
		w.PageSize = flagOr(cmd, "page-size", opts.PageSize, cfg.PageSize)
	}
	specs := loader.Stores(opts.SectorLabels)
	schemas := specSchemas(specs)
	fitWorkload(w, schemas)
	params, err := bindParams(w, schemas, opts.Params, randomFill(gen))
	if err != nil {
		return err
	}
	reqs, err := w.Requests(params)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid workload", err)
	}

	be, err := openBackend(ctx, cmd, opts, specs, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			logger.Error("error closing backend", slog.Any("err", err))
		}
	}()

	m := metrics.New()
	ld := loader.New(be.sink, gen, loader.WithLogger(logger), loader.WithMetrics(m))
	if err := ld.LoadReference(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to load reference data", err)
	}
	count := flagOr(cmd, "count", opts.Count, cfg.Count)
	stats, err := ld.LoadEntities(ctx, count)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load entities", err)
	}

	ropts := []runner.Option{
		runner.WithCompiler(be.compiler),
		runner.WithLogger(logger),
		runner.WithMetrics(m),
	}
	if opts.RunID != nil {
		ropts = append(ropts, runner.WithIDGenerator(opts.RunID))
	}
	r := runner.New(be.backend, ropts...)
	report, err := r.Bench(ctx, reqs, runner.BenchOptions{
		Workers:    opts.Workers,
		Iterations: opts.Iterations,
		QPS:        opts.QPS,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "bench failed", err)
	}

	return newFormatter(opts.RootOptions, cmd).Success(report.RunID, benchView{
		Backend: opts.Backend,
		Load:    newLoaded(loader.StoreEntities, stats),
		Report:  report,
	})
}

func openBackend(ctx context.Context, cmd *cobra.Command, opts *BenchOptions, specs []loader.StoreSpec, logger *slog.Logger) (*benchBackend, error) {
	cfg := opts.Config
	switch opts.Backend {
	case BackendMemory:
		c, err := loader.NewCatalog(specs,
			store.WithPartitions(flagOr(cmd, "partitions", opts.Partitions, cfg.Partitions)),
			store.WithBufferSize(flagOr(cmd, "buffer", opts.Buffer, cfg.Buffer)),
			store.WithLogger(logger))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create stores", err)
		}
		return &benchBackend{
			sink:     c,
			backend:  c,
			compiler: querysql.NewSQLCompiler(c.Schemas()),
			close:    func() error { return nil },
		}, nil

	case BackendSQLite:
		path, cleanup := opts.Database, func() error { return nil }
		if path == "" {
			dir, err := os.MkdirTemp("", "fsgrid-bench-")
			if err != nil {
				return nil, WrapExitError(ExitCommandError, "failed to create temp dir", err)
			}
			path = filepath.Join(dir, "bench.db")
			cleanup = func() error { return os.RemoveAll(dir) }
		}
		db, err := sqlstore.Open(path,
			sqlstore.WithBatchSize(flagOr(cmd, "buffer", opts.Buffer, cfg.Buffer)),
			sqlstore.WithLogger(logger))
		if err != nil {
			cleanup()
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		if err := loader.RegisterSQL(ctx, db, specs); err != nil {
			db.Close()
			cleanup()
			return nil, WrapExitError(ExitCommandError, "failed to create tables", err)
		}
		return &benchBackend{
			sink:     db,
			backend:  db,
			compiler: querysql.NewSQLCompiler(db.Schemas()),
			close: func() error {
				err := db.Close()
				if cerr := cleanup(); err == nil {
					err = cerr
				}
				return err
			},
		}, nil
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q: must be %s or %s", opts.Backend, BackendMemory, BackendSQLite))
}
