package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbit-lang/evalcore/pkg/evalcore"
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "List the current state snapshot (items, variables, deps)",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, err := evalcore.New(evalcore.Config{Workdir: workdir, Logger: logger})
		if err != nil {
			exitWithError("creating eval context: %v", err)
		}
		defer ctx.Close()

		snap := ctx.StateSnapshot()
		fmt.Printf("items: %d\n", snap.ItemsCount)
		for _, v := range snap.Variables {
			fmt.Printf("%s: %s\n", v.Name, v.Type)
		}
		for _, d := range snap.Deps {
			fmt.Printf("dep: %s\n", d)
		}
	},
}

func init() {
	rootCmd.AddCommand(varsCmd)
}
