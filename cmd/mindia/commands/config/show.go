package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremybastin1207/mindia/internal/cli/output"
	"github.com/jeremybastin1207/mindia/internal/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the current configuration",
	Long: `Display the loaded mindia configuration (env/file layered over
defaults).

Examples:
  mindia config show
  mindia config show --output json
  mindia config show --config /etc/mindia/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	default:
		return output.PrintYAML(os.Stdout, cfg)
	}
}
