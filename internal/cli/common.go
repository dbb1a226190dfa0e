package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/loader"
	"github.com/kemiz/fsgrid/internal/workload"
)

// newLogger builds the process logger on w: debug with --verbose, JSON
// when FSGRID_LOG_FORMAT=json.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.Config.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// flagOr returns the flag value when the user set it, otherwise the
// configured value.
func flagOr[T any](cmd *cobra.Command, name string, flagVal, cfgVal T) T {
	if cmd.Flags().Changed(name) {
		return flagVal
	}
	return cfgVal
}

// loadPools reads the reference files. A failure is a startup error.
func loadPools(dataDir string) (loader.Pools, error) {
	pools, err := loader.LoadPools(dataDir)
	if err != nil {
		return loader.Pools{}, WrapExitError(ExitCommandError, "failed to read reference data", err)
	}
	return pools, nil
}

// newGenerator seeds from --seed when it was given.
func newGenerator(cmd *cobra.Command, pools loader.Pools, seed uint64) *loader.Generator {
	if cmd.Flags().Changed("seed") {
		return loader.NewGenerator(pools, loader.Seeded(seed))
	}
	return loader.NewGenerator(pools, nil)
}

// loadWorkload reads path, or returns the built-in workload when empty.
func loadWorkload(path string) (*workload.Workload, error) {
	if path == "" {
		return workload.Default(), nil
	}
	w, err := workload.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load workload", err)
	}
	return w, nil
}

// specSchemas indexes the schemas of specs by store name.
func specSchemas(specs []loader.StoreSpec) map[string]entity.Schema {
	schemas := make(map[string]entity.Schema, len(specs))
	for _, spec := range specs {
		schemas[spec.Name] = spec.Schema
	}
	return schemas
}

// fitWorkload points the workload's sector joins at the field the entity
// store's sector column holds.
func fitWorkload(w *workload.Workload, schemas map[string]entity.Schema) {
	if s, ok := schemas[loader.StoreEntities]; ok {
		w.RebindJoins(loader.StoreSectors, entity.KeyField, loader.SectorJoinField(s))
	}
}

// parseParam converts a --param value to the type of the field it
// filters. Without a declared type, integers become IRInt.
func parseParam(name, raw string, t entity.Type, typed bool) (ir.IRValue, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	switch {
	case typed && t == entity.TypeString:
		return ir.IRString(raw), nil
	case typed && t == entity.TypeInt && err != nil:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--param %s: %q is not an integer", name, raw))
	case err == nil:
		return ir.IRInt(n), nil
	}
	return ir.IRString(raw), nil
}

// unbound reports whether some placeholder of w has no explicit value.
func unbound(w *workload.Workload, explicit map[string]string) bool {
	return slices.ContainsFunc(w.Placeholders(), func(name string) bool {
		_, ok := explicit[name]
		return !ok
	})
}

// bindParams resolves every placeholder of w: explicit --param values
// first, typed by the fields they filter in schemas, then fill for the
// rest. fill reports false for names it cannot supply.
func bindParams(w *workload.Workload, schemas map[string]entity.Schema, explicit map[string]string, fill func(name string) (ir.IRValue, bool)) (workload.Params, error) {
	params := make(workload.Params, len(explicit))
	for k, raw := range explicit {
		t, typed := w.PlaceholderType(k, schemas)
		v, err := parseParam(k, raw, t, typed)
		if err != nil {
			return nil, err
		}
		params[k] = v
	}
	var missing []string
	for _, name := range w.Placeholders() {
		if _, ok := params[name]; ok {
			continue
		}
		v, ok := fill(name)
		if !ok {
			missing = append(missing, "$"+name)
			continue
		}
		params[name] = v
	}
	if len(missing) > 0 {
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("no value for %s (use --param name=value)", strings.Join(missing, ", ")))
	}
	return params, nil
}

// randomFill picks $country and $currency from the pools.
func randomFill(gen *loader.Generator) func(string) (ir.IRValue, bool) {
	return func(name string) (ir.IRValue, bool) {
		switch name {
		case "country":
			return ir.IRString(gen.PickCountry()), true
		case "currency":
			return ir.IRString(gen.PickCurrency()), true
		}
		return nil, false
	}
}

// startProfiler starts continuous profiling when addr is set. The
// returned stop function is always safe to call.
func startProfiler(addr, app string, logger *slog.Logger) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "fsgrid." + app,
		ServerAddress:   addr,
		Logger:          pyroscopeLogger{logger},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start profiler", err)
	}
	logger.Info("profiling enabled", slog.String("server", addr))
	return func() { _ = profiler.Stop() }, nil
}

// pyroscopeLogger routes profiler messages to slog.
type pyroscopeLogger struct{ l *slog.Logger }

func (p pyroscopeLogger) Infof(format string, args ...any)  { p.l.Debug(fmt.Sprintf(format, args...)) }
func (p pyroscopeLogger) Debugf(format string, args ...any) { p.l.Debug(fmt.Sprintf(format, args...)) }
func (p pyroscopeLogger) Errorf(format string, args ...any) { p.l.Error(fmt.Sprintf(format, args...)) }
