package main

import (
	"github.com/aretw0/canopy/internal/cli"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored sessions",
	Long:  `List, inspect, and remove the session snapshots kept by the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd, func(storage *cli.Storage) error {
			return cli.ListSessions(cmd.Context(), storage.Store, cmd.OutOrStdout())
		})
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <participant:conversation>",
	Short: "Print the snapshot of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := domain.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		return withStorage(cmd, func(storage *cli.Storage) error {
			return cli.InspectSession(cmd.Context(), storage.Store, id, cmd.OutOrStdout())
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <participant:conversation>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := cli.ParseIdentities(args)
		if err != nil {
			return err
		}
		return withStorage(cmd, func(storage *cli.Storage) error {
			return cli.RemoveSessions(cmd.Context(), storage.Store, ids, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}

func withStorage(cmd *cobra.Command, fn func(*cli.Storage) error) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	storage, err := cli.OpenStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()
	return fn(storage)
}
