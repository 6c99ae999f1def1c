package cmd

import (
	"github.com/spf13/cobra"

	"github.com/orbit-lang/evalcore/pkg/evalcore"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear items, uses, deps, and variables",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, err := evalcore.New(evalcore.Config{Workdir: workdir, Logger: logger})
		if err != nil {
			exitWithError("creating eval context: %v", err)
		}
		defer ctx.Close()

		if err := ctx.Reset(); err != nil {
			exitWithError("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
