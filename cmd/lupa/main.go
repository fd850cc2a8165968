// Command lupa is the entity extraction CLI.
package main

import (
	"os"

	"github.com/turtacn/lupa/internal/app"
	"github.com/turtacn/lupa/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	app.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
