package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremybastin1207/mindia/internal/app"
	"github.com/jeremybastin1207/mindia/internal/cli/output"
	"github.com/jeremybastin1207/mindia/internal/config"
	mupload "github.com/jeremybastin1207/mindia/pkg/upload"
)

var (
	sessionsListStatus string
	sessionsListLimit  int
)

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a tenant's upload sessions",
	Long: `List upload sessions for a tenant, newest-created first, optionally
filtered by status.

Examples:
  mindia upload sessions list --tenant acme
  mindia upload sessions list --tenant acme --status uploading --limit 20`,
	RunE: runSessionsList,
}

func init() {
	sessionsListCmd.Flags().StringVar(&sessionsListStatus, "status", "", "filter by status (pending|uploading|completed|failed|expired)")
	sessionsListCmd.Flags().IntVar(&sessionsListLimit, "limit", 50, "maximum rows to return")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
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

	sessions, err := a.UploadRepo.ListByTenant(ctx, tenant, mupload.Status(sessionsListStatus), sessionsListLimit)
	if err != nil {
		return err
	}

	table := output.NewTableData("ID", "FILENAME", "KIND", "STATUS", "SIZE", "CHUNKS", "CREATED")
	for _, s := range sessions {
		table.AddRow(s.ID, s.Filename, string(s.MediaKind), string(s.Status), fmt.Sprintf("%d", s.DeclaredSize), fmt.Sprintf("%d", s.ChunkCount), s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return output.PrintTable(os.Stdout, table)
}
