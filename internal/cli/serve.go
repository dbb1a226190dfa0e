package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kemiz/fsgrid/internal/loader"
	"github.com/kemiz/fsgrid/internal/metrics"
	"github.com/kemiz/fsgrid/internal/server"
	"github.com/kemiz/fsgrid/internal/store"
)

// shutdownTimeout bounds the wait for in-flight queries on exit.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Load         bool
	Count        int
	Addr         string
	Seed         uint64
	DataDir      string
	Partitions   int
	Buffer       int
	SectorLabels bool

	// Ready, if set, receives the bound address once the server accepts
	// connections (for testing).
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	def := opts.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the stores over HTTP",
		Long: `Create the entity, sector and currency stores and serve queries over
HTTP until interrupted. With --load the stores are filled first: the
reference data files go into the sector and currency stores and --count
synthetic entities into the entity store.

Example:
  fsgrid serve --load --count 2000
  fsgrid serve --load --seed 7 --addr 127.0.0.1:9000 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Load, "load", false, "load reference data and generated entities before serving")
	cmd.Flags().IntVar(&opts.Count, "count", def.Count, "number of entities to generate")
	cmd.Flags().StringVar(&opts.Addr, "addr", def.Addr, "listen address")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed for generated attributes (default: unseeded)")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", def.DataDir, "directory holding currency_codes.txt and sectors.txt")
	cmd.Flags().IntVar(&opts.Partitions, "partitions", def.Partitions, "entity store partitions")
	cmd.Flags().IntVar(&opts.Buffer, "buffer", def.Buffer, "load buffer size per flush")
	cmd.Flags().BoolVar(&opts.SectorLabels, "sector-labels", false, "use the v1 schema where sector is a label")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := opts.Config
	addr := flagOr(cmd, "addr", opts.Addr, cfg.Addr)
	count := flagOr(cmd, "count", opts.Count, cfg.Count)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(opts.RootOptions, cmd)

	stopProfiler, err := startProfiler(cfg.PyroscopeAddr, "serve", logger)
	if err != nil {
		return err
	}
	defer stopProfiler()

	catalog, err := loader.NewCatalog(loader.Stores(opts.SectorLabels),
		store.WithPartitions(flagOr(cmd, "partitions", opts.Partitions, cfg.Partitions)),
		store.WithBufferSize(flagOr(cmd, "buffer", opts.Buffer, cfg.Buffer)),
		store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create stores", err)
	}
	m := metrics.New()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Load {
		pools, err := loadPools(flagOr(cmd, "data-dir", opts.DataDir, cfg.DataDir))
		if err != nil {
			return err
		}
		gen := newGenerator(cmd, pools, opts.Seed)
		gen.SectorLabels = opts.SectorLabels
		ld := loader.New(catalog, gen, loader.WithLogger(logger), loader.WithMetrics(m))
		if err := ld.LoadReference(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to load reference data", err)
		}
		stats, err := ld.LoadEntities(ctx, count)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to load entities", err)
		}
		out.VerboseLog("%s", newLoaded(loader.StoreEntities, stats))
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := server.New(catalog, addr, server.WithLogger(logger), server.WithMetrics(m))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d stores (%d entities) on %s\n", len(catalog.Names()), catalog.Size(), l.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready <- l.Addr().String()
	}

	select {
	case err := <-errc:
		if err != nil {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("received signal, shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	if err := <-errc; err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped", slog.Int("entities", catalog.Size()))
	return nil
}
