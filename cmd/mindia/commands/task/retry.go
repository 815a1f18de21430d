package task

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremybastin1207/mindia/internal/app"
	"github.com/jeremybastin1207/mindia/internal/cli/prompt"
	"github.com/jeremybastin1207/mindia/internal/config"
)

var retryForce bool

var retryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Reset a failed task back to pending",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func init() {
	retryCmd.Flags().BoolVar(&retryForce, "force", false, "skip the confirmation prompt")
}

func runRetry(cmd *cobra.Command, args []string) error {
	if tenant == "" {
		return fmt.Errorf("--tenant is required")
	}
	taskID := args[0]

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Retry task %s?", taskID), retryForce)
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

	if err := a.TaskRepo.RetryTask(ctx, tenant, taskID); err != nil {
		return err
	}
	fmt.Printf("Task %s reset to pending.\n", taskID)
	return nil
}
