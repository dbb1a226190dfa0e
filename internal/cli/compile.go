package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/loader"
	"github.com/kemiz/fsgrid/internal/querysql"
	"github.com/kemiz/fsgrid/internal/workload"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Workload     string
	Params       map[string]string
	SectorLabels bool
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the SQL for each workload query",
		Long: `Compile every query of a workload to the parameterised SQL the
SQLite backend executes. Placeholders without a --param value are shown
as their own name.

Example:
  fsgrid compile
  fsgrid compile --workload ./queries.yaml --param country=FR`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Workload, "workload", "", "workload file (default: built-in)")
	cmd.Flags().StringToStringVar(&opts.Params, "param", nil, "placeholder value, name=value")
	cmd.Flags().BoolVar(&opts.SectorLabels, "sector-labels", false, "compile against the v1 schema where sector is a label")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *CompileOptions) error {
	w, err := loadWorkload(opts.Workload)
	if err != nil {
		return err
	}
	schemas := specSchemas(loader.Stores(opts.SectorLabels))
	fitWorkload(w, schemas)
	params, err := bindParams(w, schemas, opts.Params, func(name string) (ir.IRValue, bool) {
		return ir.IRString("$" + name), true
	})
	if err != nil {
		return err
	}
	reqs, err := w.Requests(params)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid workload", err)
	}

	compiler := querysql.NewSQLCompiler(schemas)

	view := compileView{Workload: w.Name}
	if view.Fingerprint, err = workload.Fingerprint(w.Name, reqs); err != nil {
		return WrapExitError(ExitFailure, "fingerprint failed", err)
	}
	for _, n := range reqs {
		sql, args, err := compiler.Compile(n.Request)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("query %s does not compile", n.Name), err)
		}
		if args == nil {
			args = []any{}
		}
		view.Queries = append(view.Queries, compiled{
			Name:   n.Name,
			Kind:   string(n.Request.Kind),
			SQL:    sql,
			Params: args,
		})
	}
	return newFormatter(opts.RootOptions, cmd).Success("", view)
}
