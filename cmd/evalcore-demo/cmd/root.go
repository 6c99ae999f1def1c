package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbit-lang/evalcore/internal/evallog"
)

var (
	// Version information (set by build flags)
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	verbose  bool
	workdir  string
	logger   *evallog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "evalcore-demo",
	Short: "Interactive evaluation context for HL",
	Long: `evalcore-demo is a minimal front-end over the eval-loop core.

It submits fragments of HL source — items, statements, directives, and
trailing expressions — to a persistent EvalContext and prints the
resulting display artifacts, diagnostics, and state changes.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := evallog.LevelInfo
		if verbose {
			level = evallog.LevelDebug
		}
		logger = evallog.NewStderr(level)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{with .Name}}{{printf "%%s " .}}{{end}}{{printf "version %%s" .Version}}
Commit: %s
Built:  %s
`, GitCommit, BuildDate))

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&workdir, "workdir", "", "persistent working directory for this context (defaults to a fresh temp dir)")
}

func exitWithError(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+msg+"\n", args...)
	os.Exit(1)
}
