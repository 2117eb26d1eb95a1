// Command condpush rewrites query expression trees with conditional
// pushdown, translates them to SQL and runs conformance scenarios.
package main

import (
	"os"

	"github.com/roach88/condpush/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
