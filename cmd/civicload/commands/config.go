package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/civicload/config"
	"github.com/teranos/civicload/errors"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display and check civicload configuration.

Configuration sources (in order of precedence):
1. Environment variables (CIVICLOAD_* prefix, e.g. CIVICLOAD_WAREHOUSE_DSN)
2. --config PATH, or the first civicload.toml found upward from the working directory
3. User config (~/.civicload/civicload.toml)
4. System config (/etc/civicload/civicload.toml)
5. Default values

Examples:
  civicload config show                  # Show configuration as TOML
  civicload config show --format yaml    # Show configuration as YAML
  civicload config get warehouse.driver  # Get one value
  civicload config validate`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration from all sources. Credentials are masked.",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., warehouse.driver, http.max_retries)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runConfigValidate,
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, yaml, json")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if _, err := currentConfig(); err != nil {
		return err
	}
	data, err := config.Render(config.GetViper(), configFormat)
	if err != nil {
		return err
	}
	if configFormat != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "# civicload configuration")
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if _, err := currentConfig(); err != nil {
		return err
	}
	key := args[0]
	v := config.GetViper()
	if !v.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q not found", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}
