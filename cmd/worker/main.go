// Command worker consumes match requests from Kafka and publishes the
// results. It accepts the flags of `lupa worker`.
package main

import (
	"os"

	"github.com/turtacn/lupa/internal/app"
	"github.com/turtacn/lupa/internal/interfaces/cli"
)

var version = "dev"

func main() {
	app.Version = version
	if err := cli.ExecuteSubcommand("worker", os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
