// Command evalcore-demo is a minimal line-oriented front-end over
// pkg/evalcore, demonstrating the eval-loop core outside of any particular
// REPL or notebook protocol integration.
package main

import (
	"fmt"
	"os"

	"github.com/orbit-lang/evalcore/cmd/evalcore-demo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
