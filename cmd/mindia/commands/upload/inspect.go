package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremybastin1207/mindia/internal/app"
	"github.com/jeremybastin1207/mindia/internal/cli/output"
	"github.com/jeremybastin1207/mindia/internal/config"
)

var sessionsInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Show a single session's chunk state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsInspect,
}

func runSessionsInspect(cmd *cobra.Command, args []string) error {
	if tenant == "" {
		return fmt.Errorf("--tenant is required")
	}
	sessionID := args[0]

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

	session, err := a.UploadRepo.GetSession(ctx, tenant, sessionID)
	if err != nil {
		return err
	}
	chunks, err := a.UploadRepo.GetChunks(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := output.SimpleTable(os.Stdout, [][2]string{
		{"ID", session.ID},
		{"Filename", session.Filename},
		{"Kind", string(session.MediaKind)},
		{"Status", string(session.Status)},
		{"Declared size", fmt.Sprintf("%d", session.DeclaredSize)},
		{"Chunk size", fmt.Sprintf("%d", session.ChunkSize)},
		{"Chunk count", fmt.Sprintf("%d", session.ChunkCount)},
		{"Chunks received", fmt.Sprintf("%d", len(chunks))},
		{"Expires at", session.ExpiresAt.Format("2006-01-02 15:04:05")},
	}); err != nil {
		return err
	}

	fmt.Println("\nReceived chunks:")
	table := output.NewTableData("INDEX", "STORAGE KEY", "SIZE")
	for _, c := range chunks {
		table.AddRow(fmt.Sprintf("%d", c.Index), c.StorageKey, fmt.Sprintf("%d", c.Size))
	}
	return output.PrintTable(os.Stdout, table)
}
