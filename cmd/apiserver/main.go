// Command apiserver serves the lupa HTTP API. It accepts the flags of
// `lupa serve`.
package main

import (
	"os"

	"github.com/turtacn/lupa/internal/app"
	"github.com/turtacn/lupa/internal/interfaces/cli"
)

var version = "dev"

func main() {
	app.Version = version
	if err := cli.ExecuteSubcommand("serve", os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
