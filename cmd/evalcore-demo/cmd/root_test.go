package cmd

import (
	"io"
	"os"
	"strings"
	"testing"
)

func TestVersionCommandPrintsVersionInfo(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})

	realStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	execErr := rootCmd.Execute()
	w.Close()
	os.Stdout = realStdout
	if execErr != nil {
		t.Fatalf("Execute: %v", execErr)
	}

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "evalcore-demo version") {
		t.Fatalf("unexpected output: %q", string(out))
	}
}

func TestRootCommandRegistersExpectedSubcommands(t *testing.T) {
	want := map[string]bool{"eval": false, "dep": false, "vars": false, "reset": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected rootCmd to register a %q subcommand", name)
		}
	}
}
