package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kemiz/fsgrid/internal/client"
	"github.com/kemiz/fsgrid/internal/config"
	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
	"github.com/kemiz/fsgrid/internal/runner"
	"github.com/kemiz/fsgrid/internal/server"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Addr     string
	Workload string
	Params   map[string]string
	Seed     uint64
	DataDir  string
	PageSize int
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	def := rootOpts.Config

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a workload against a server",
		Long: `Run every query of a workload against a running server and print the
server-side time, the round trip and at most one page of rows per query.

$country and $currency placeholders without a --param value are picked at
random from the reference data.

Example:
  fsgrid query
  fsgrid query --addr localhost:9000 --param country=US --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", def.Addr, "server address or URL")
	cmd.Flags().StringVar(&opts.Workload, "workload", "", "workload file (default: built-in)")
	cmd.Flags().StringToStringVar(&opts.Params, "param", nil, "placeholder value, name=value")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed for placeholder picks (default: unseeded)")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", def.DataDir, "directory holding currency_codes.txt and sectors.txt")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", def.PageSize, "rows printed per query when the workload sets none")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions) error {
	cfg := opts.Config
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	w, err := loadWorkload(opts.Workload)
	if err != nil {
		return err
	}
	if w.PageSize == 0 {
		w.PageSize = flagOr(cmd, "page-size", opts.PageSize, cfg.PageSize)
	}

	addr := config.Config{Addr: flagOr(cmd, "addr", opts.Addr, cfg.Addr)}.ClientURL()
	c := client.New(addr)
	if _, err := c.Health(ctx); err != nil {
		return WrapExitError(ExitCommandError, "server unreachable at "+addr, err)
	}
	infos, err := c.Stores(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list stores", err)
	}
	schemas := serverSchemas(infos)
	fitWorkload(w, schemas)

	fill := func(string) (ir.IRValue, bool) { return nil, false }
	if unbound(w, opts.Params) {
		pools, err := loadPools(flagOr(cmd, "data-dir", opts.DataDir, cfg.DataDir))
		if err != nil {
			return err
		}
		fill = randomFill(newGenerator(cmd, pools, opts.Seed))
	}
	params, err := bindParams(w, schemas, opts.Params, fill)
	if err != nil {
		return err
	}
	reqs, err := w.Requests(params)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid workload", err)
	}

	runID := runner.NewRunID()
	logger.Info("running workload",
		slog.String("run_id", runID),
		slog.String("workload", w.Name),
		slog.String("server", addr))

	out := newFormatter(opts.RootOptions, cmd)
	view := queryView{Workload: w.Name}
	for _, n := range reqs {
		res, rtt, err := c.Query(ctx, n)
		if err != nil {
			var qe *query.Error
			if errors.As(err, &qe) {
				if werr := out.QueryError(n.Name, qe); werr != nil {
					logger.Warn("failed to write error", slog.Any("err", werr))
				}
			}
			return WrapExitError(ExitFailure, "query "+n.Name+" failed", err)
		}
		logger.Debug("query done",
			slog.String("name", n.Name),
			slog.Int("rows", len(res.Rows)),
			slog.Duration("round_trip", rtt))
		view.Results = append(view.Results, queryResult{Result: res, RoundTrip: rtt})
	}
	return out.Success(runID, view)
}

// serverSchemas rebuilds the schemas a server reports. Fields with a type
// this build does not know are left out.
func serverSchemas(infos []server.StoreInfo) map[string]entity.Schema {
	schemas := make(map[string]entity.Schema, len(infos))
	for _, info := range infos {
		s := entity.Schema{Name: info.Schema, Version: info.SchemaVersion}
		for _, f := range info.Fields {
			t, err := entity.ParseType(f.Type)
			if err != nil {
				continue
			}
			s.Fields = append(s.Fields, entity.Field{Name: f.Name, Type: t, Indexed: f.Indexed})
		}
		schemas[info.Name] = s
	}
	return schemas
}
