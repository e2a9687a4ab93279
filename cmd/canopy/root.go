package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/canopy/internal/cli"
	"github.com/aretw0/canopy/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "canopy",
	Short: "Canopy runs hierarchical conversational bots",
	Long: `Canopy executes trees of conversational elements described in YAML,
keeping one session per participant and conversation.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the canopy configuration file")
	rootCmd.PersistentFlags().StringP("trees", "t", "", "Path to the tree document (overrides the config)")
	rootCmd.PersistentFlags().String("store", "", "Store driver: memory, file, bolt, sqlite or redis (overrides the config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides the config)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json (overrides the config)")
}

// loadConfig reads --config and applies the flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("trees"); v != "" {
		cfg.Trees = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Driver = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cli.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
