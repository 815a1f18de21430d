package task

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremybastin1207/mindia/internal/app"
	"github.com/jeremybastin1207/mindia/internal/cli/prompt"
	"github.com/jeremybastin1207/mindia/internal/config"
)

var cancelForce bool

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a pending or scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	cancelCmd.Flags().BoolVar(&cancelForce, "force", false, "skip the confirmation prompt")
}

func runCancel(cmd *cobra.Command, args []string) error {
	if tenant == "" {
		return fmt.Errorf("--tenant is required")
	}
	taskID := args[0]

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Cancel task %s?", taskID), cancelForce)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
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

	if err := a.TaskRepo.CancelTask(ctx, tenant, taskID); err != nil {
		return err
	}
	fmt.Printf("Task %s cancelled.\n", taskID)
	return nil
}
