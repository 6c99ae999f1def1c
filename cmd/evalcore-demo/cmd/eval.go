package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orbit-lang/evalcore/pkg/evalcore"
)

var evalExpr string

var evalCmd = &cobra.Command{
	Use:   "eval [file]",
	Short: "Evaluate HL fragments against a persistent context",
	Long: `Submit fragments of HL source to a persistent evaluation context.

Examples:
  # Evaluate an inline fragment
  evalcore-demo eval -e "let x: i32 = 40;"

  # Read fragments from a file, one per blank-line-separated block
  evalcore-demo eval session.hl

  # Read fragments from stdin interactively
  evalcore-demo eval`,
	Run: runEval,
}

func init() {
	evalCmd.Flags().StringVarP(&evalExpr, "eval", "e", "", "evaluate this fragment and exit")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) {
	ctx, err := evalcore.New(evalcore.Config{Workdir: workdir, Logger: logger})
	if err != nil {
		exitWithError("creating eval context: %v", err)
	}
	defer ctx.Close()

	if evalExpr != "" {
		evaluateAndPrint(ctx, evalExpr)
		return
	}

	var input *os.File
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			exitWithError("opening %s: %v", args[0], err)
		}
		defer f.Close()
		input = f
	} else {
		input = os.Stdin
	}

	var block strings.Builder
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if block.Len() > 0 {
				evaluateAndPrint(ctx, block.String())
				block.Reset()
			}
			continue
		}
		block.WriteString(line)
		block.WriteString("\n")
	}
	if block.Len() > 0 {
		evaluateAndPrint(ctx, block.String())
	}
}

func evaluateAndPrint(ctx *evalcore.EvalContext, fragment string) {
	outcome, err := ctx.Evaluate(context.Background(), fragment)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if outcome.DirectiveOutput != "" {
		fmt.Print(outcome.DirectiveOutput)
	}
	for _, d := range outcome.DisplayArtifacts {
		fmt.Printf("[%s]\n%s\n", d.MimeType, d.Body)
	}
	if len(outcome.Diagnostics) > 0 {
		fmt.Fprintln(os.Stderr, outcome.Diagnostics.Format(true))
	}
	if outcome.Quit {
		os.Exit(0)
	}
}
