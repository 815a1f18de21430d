// Package upload implements the "mindia upload" admin subcommands.
package upload

import (
	"github.com/spf13/cobra"
)

// Cmd is the upload subcommand group.
var Cmd = &cobra.Command{
	Use:   "upload",
	Short: "Inspect chunked upload sessions",
	Long: `Inspect chunked/resumable upload sessions against the same database
"mindia serve" uses.

Subcommands:
  sessions list     List a tenant's upload sessions
  sessions inspect   Show a single session's chunk state`,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage upload sessions",
}

var tenant string

func init() {
	Cmd.PersistentFlags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsInspectCmd)
	Cmd.AddCommand(sessionsCmd)
}
