package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremybastin1207/mindia/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate the mindia configuration file: checks for syntax errors,
missing required fields, and invalid values, then flags any settings that
would leave the server degraded at runtime.

Examples:
  mindia config validate
  mindia config validate --config /etc/mindia/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = "(default search path)"
	}

	var warnings []string
	if cfg.Database.Type == "postgres" && cfg.Database.Postgres.Password == "" {
		warnings = append(warnings, "postgres password is empty")
	}
	if cfg.ObjectStore.Type == "s3" && cfg.ObjectStore.Bucket == "" {
		warnings = append(warnings, "object store type is s3 but no bucket is configured")
	}
	if cfg.Telemetry.OTLPEndpoint == "" {
		warnings = append(warnings, "telemetry OTLP endpoint not configured - tracing is disabled")
	}
	if cfg.Scheduler.WorkerCount <= 0 {
		warnings = append(warnings, "scheduler worker count is zero - no tasks will be dispatched")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:      %s\n", cfg.Database.Type)
	fmt.Printf("  Object store type:  %s\n", cfg.ObjectStore.Type)
	fmt.Printf("  HTTP address:       %s\n", cfg.HTTP.Addr)
	fmt.Printf("  Scheduler workers:  %d\n", cfg.Scheduler.WorkerCount)
	fmt.Printf("  Log level:          %s\n", cfg.Logging.Level)

	return nil
}
