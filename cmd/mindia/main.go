// Command mindia runs the task scheduler, chunked-upload coordinator, and
// their HTTP contract layer, or one of its admin/config subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/jeremybastin1207/mindia/cmd/mindia/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
