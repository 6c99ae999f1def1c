package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbit-lang/evalcore/pkg/evalcore"
)

var depCmd = &cobra.Command{
	Use:   "dep NAME=SPEC",
	Short: "Add or replace a dependency (equivalent to :dep)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, err := evalcore.New(evalcore.Config{Workdir: workdir, Logger: logger})
		if err != nil {
			exitWithError("creating eval context: %v", err)
		}
		defer ctx.Close()

		outcome, err := ctx.Evaluate(context.Background(), ":dep "+args[0])
		if err != nil {
			exitWithError("%v", err)
		}
		if len(outcome.Diagnostics) > 0 {
			fmt.Println(outcome.Diagnostics.Format(true))
		}
	},
}

func init() {
	rootCmd.AddCommand(depCmd)
}
