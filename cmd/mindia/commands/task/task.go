// Package task implements the "mindia task" admin subcommands.
package task

import (
	"github.com/spf13/cobra"
)

// Cmd is the task subcommand group.
var Cmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and manage tasks",
	Long: `Inspect and manage tasks in the Task Scheduler's queue, against the
same database "mindia serve" uses.

Subcommands:
  list    List a tenant's tasks
  cancel  Cancel a pending or scheduled task
  retry   Reset a failed task back to pending`,
}

var tenant string

func init() {
	Cmd.PersistentFlags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(retryCmd)
}
