package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/civicload/cmd/civicload/commands"
	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/logger"
)

var rootCmd = &cobra.Command{
	Use:   "civicload",
	Short: "Ingest government open data into a SQL warehouse",
	Long: `civicload acquires published open-data files, normalizes them to UTF-8 CSV,
validates them against schema contracts and merges them into warehouse tables.

Each dataset is processed on its own: a failure marks that dataset FAILED and
the run continues with the next one.

Available commands:
  run        - Acquire, normalize, validate and load datasets
  datasets   - List registered datasets
  contract   - Show a dataset's schema contract
  manifest   - Inspect or prune the download manifest
  reconcile  - Compare loaded row counts with the validated files
  strip      - Remove columns outside the contract from validated files
  config     - Show the effective configuration
  version    - Show version information`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := commands.LoadConfig(configPath)
		if err != nil {
			return err
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		return logger.Initialize(jsonLogs || cfg.Log.JSON, verbosity)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: civicload.toml search)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON to stderr")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.DatasetsCmd)
	rootCmd.AddCommand(commands.ContractCmd)
	rootCmd.AddCommand(commands.ManifestCmd)
	rootCmd.AddCommand(commands.ReconcileCmd)
	rootCmd.AddCommand(commands.StripCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
