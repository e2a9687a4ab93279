package main

import (
	"fmt"

	"github.com/aretw0/canopy/internal/cli"
	"github.com/aretw0/canopy/internal/presentation/graph"
	"github.com/aretw0/canopy/pkg/adapters/goja"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/loader"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the tree hierarchy as a Mermaid diagram",
	Long: `Loads the tree document and prints a Mermaid flowchart (graph TD). With
--session, the elements open in that stored session are highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		root, err := loader.New(loader.WithCompiler(goja.New())).LoadFile(cfg.Trees)
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if s, _ := cmd.Flags().GetString("session"); s != "" {
			id, err := domain.ParseIdentity(s)
			if err != nil {
				return err
			}
			storage, err := cli.OpenStorage(cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()
			snap, err := storage.Store.Load(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("error loading session '%s': %w", id, err)
			}
			overlay = &graph.Overlay{Stack: snap.Stack}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(root, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Highlight the open elements of a stored session")
}
