package main

import (
	"fmt"

	"github.com/aretw0/canopy/pkg/adapters/goja"
	"github.com/aretw0/canopy/pkg/controller"
	"github.com/aretw0/canopy/pkg/loader"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [tree-document]",
	Short: "Check a tree document for consistency",
	Long: `Parses the document, compiles every expression and links the hierarchy,
reporting unknown keys, duplicate names and broken transition targets.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		} else {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path = cfg.Trees
		}

		opts := []loader.Option{loader.WithCompiler(goja.New())}
		if names, _ := cmd.Flags().GetStringSlice("controller"); len(names) > 0 {
			reg := controller.NewRegistry()
			for _, name := range names {
				reg.Register(name, func() any { return struct{}{} })
			}
			opts = append(opts, loader.WithControllers(reg))
		}

		root, err := loader.New(opts...).LoadFile(path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d trees\n", path, len(root.Branches))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringSlice("controller", nil, "Controller names the host registers; when set, unknown controllers are rejected")
}
