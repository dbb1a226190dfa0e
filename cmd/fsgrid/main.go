// Command fsgrid hosts, loads and benchmarks partitioned entity stores.
package main

import (
	"fmt"
	"os"

	"github.com/kemiz/fsgrid/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
