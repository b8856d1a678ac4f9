package main

import (
	"fmt"

	"github.com/hyperengineering/spanstore"
	"github.com/spf13/cobra"
)

var (
	cfgDBPath            string
	cfgStore             string
	cfgFile              string
	cfgDebug             bool
	cfgResetIncompatible bool
	outputJSON           bool
)

var rootCmd = &cobra.Command{
	Use:   "spanstore",
	Short: "Spanstore - range-indexed record store CLI",
	Long: `Spanstore is a CLI for a local, transactional store of time-span records.

It loads records, runs overlap and containment range queries, deletes
data, and watches live queries for changes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if isTTY() {
			fmt.Fprintln(cmd.OutOrStdout(), renderBannerWithTagline())
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDBPath, "db-path", "", "Path to the database file (default: derived from --store)")
	rootCmd.PersistentFlags().StringVar(&cfgStore, "store", "", "Store ID (default: $SPANSTORE_STORE or \"default\")")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVar(&cfgDebug, "debug", false, "Log store operations to stderr")
	rootCmd.PersistentFlags().BoolVar(&cfgResetIncompatible, "reset-incompatible", false, "Back up and reset a database this build cannot read")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(deleteAllCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(storeCmd)
}

// loadConfig layers configuration: config file, then environment, then flags.
func loadConfig() (spanstore.Config, error) {
	var cfg spanstore.Config
	if cfgFile != "" {
		fileCfg, err := spanstore.LoadConfigFile(cfgFile)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}

	cfg = cfg.Merge(spanstore.ConfigFromEnv())
	cfg = cfg.Merge(spanstore.Config{
		Path:                    cfgDBPath,
		Store:                   cfgStore,
		Debug:                   cfgDebug,
		DeleteIfMigrationNeeded: cfgResetIncompatible,
		BackupOnReset:           cfgResetIncompatible,
	})
	return cfg.WithDefaults(), nil
}

// loadAndValidateConfig loads configuration and reports problems in terms
// of the flags and variables that set them.
func loadAndValidateConfig() (spanstore.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w (set --db-path, --store or SPANSTORE_DB_PATH)", err)
	}
	return cfg, nil
}

// openClient opens a client for commands that work on one store.
func openClient() (*spanstore.Client, error) {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	client, err := spanstore.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize client: %w", err)
	}
	return client, nil
}
