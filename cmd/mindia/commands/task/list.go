package task

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremybastin1207/mindia/internal/app"
	"github.com/jeremybastin1207/mindia/internal/cli/output"
	"github.com/jeremybastin1207/mindia/internal/config"
	mtask "github.com/jeremybastin1207/mindia/pkg/task"
)

var (
	listKind   string
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a tenant's tasks",
	Long: `List tasks for a tenant, newest-created first, optionally filtered
by kind and status.

Examples:
  mindia task list --tenant acme
  mindia task list --tenant acme --status failed --limit 20`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listKind, "kind", "", "filter by task kind")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (pending|scheduled|running|completed|failed|cancelled)")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum rows to return")
}

func runList(cmd *cobra.Command, args []string) error {
	if tenant == "" {
		return fmt.Errorf("--tenant is required")
	}
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open application: %w", err)
	}
	defer a.Close()

	tasks, err := a.TaskRepo.List(ctx, tenant, mtask.ListFilter{
		Kind:   listKind,
		Status: mtask.Status(listStatus),
		Limit:  listLimit,
	})
	if err != nil {
		return err
	}

	table := output.NewTableData("ID", "KIND", "STATUS", "PRIORITY", "RETRIES", "CREATED")
	for _, t := range tasks {
		table.AddRow(t.ID, t.Kind, string(t.Status), fmt.Sprintf("%d", t.Priority), fmt.Sprintf("%d/%d", t.RetryCount, t.MaxRetries), t.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return output.PrintTable(os.Stdout, table)
}
