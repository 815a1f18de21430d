// Package config implements the "mindia config" subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand group.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect and validate mindia's configuration file.

Subcommands:
  show      Display the current configuration
  validate  Validate the configuration file
  schema    Generate a JSON schema for IDE/validation`,
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(schemaCmd)
}
