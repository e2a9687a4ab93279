package main

import (
	"context"

	"github.com/aretw0/canopy/internal/cli"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot in the terminal",
	Long: `Reads lines from stdin as events of the console identity and prints the
bot replies. "!cb <token>" presses a button, "!quit" leaves.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("identity"); v != "" {
			cfg.Identity = v
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		watch, _ := cmd.Flags().GetBool("watch")
		plain, _ := cmd.Flags().GetBool("plain")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.RunChat(sigCtx, cfg, cli.ChatOptions{
			Watch: watch,
			Plain: plain,
			In:    cmd.InOrStdin(),
			Out:   cmd.OutOrStdout(),
		}, logger)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("identity", "i", "", "Session identity as participant:conversation")
	chatCmd.Flags().BoolP("watch", "w", false, "Reload the tree document when it changes")
	chatCmd.Flags().Bool("plain", false, "Print raw text without markdown rendering")
}
