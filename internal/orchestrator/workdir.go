package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workdir is the on-disk persistent state layout for one EvalContext:
//
//	<workdir>/Hl.toml          manifest regenerated each build
//	<workdir>/src/lib.hl       generated sources from the composer
//	<workdir>/target/          build tool cache, reused across evals
//	<workdir>/.last_compile_dir
type Workdir struct {
	Root string
}

// NewWorkdir creates root (and its src/target subdirectories) if needed.
// EVALCORE_TMPDIR overrides root when root is empty.
func NewWorkdir(root string) (*Workdir, error) {
	if root == "" {
		if override := os.Getenv("EVALCORE_TMPDIR"); override != "" {
			root = override
		} else {
			dir, err := os.MkdirTemp("", "evalcore-*")
			if err != nil {
				return nil, err
			}
			root = dir
		}
	}
	w := &Workdir{Root: root}
	for _, sub := range []string{"src", "target"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Workdir) ManifestPath() string { return filepath.Join(w.Root, "Hl.toml") }
func (w *Workdir) LibPath() string      { return filepath.Join(w.Root, "src", "lib.hl") }
func (w *Workdir) TargetDir() string    { return filepath.Join(w.Root, "target") }
func (w *Workdir) LastCompileDirPath() string {
	return filepath.Join(w.Root, ".last_compile_dir")
}

// WriteUnit writes the composed source and a regenerated manifest
// reflecting the current dependency set.
func (w *Workdir) WriteUnit(source string, deps map[string]string) error {
	if err := os.WriteFile(w.LibPath(), []byte(source), 0o644); err != nil {
		return err
	}
	return os.WriteFile(w.ManifestPath(), []byte(renderManifest(deps)), 0o644)
}

// RecordLastCompileDir persists the working directory used for the most
// recent build, a debugging aid surfaced through the :last_compile_dir
// directive.
func (w *Workdir) RecordLastCompileDir() error {
	return os.WriteFile(w.LastCompileDirPath(), []byte(w.Root), 0o644)
}

func renderManifest(deps map[string]string) string {
	out := "[package]\nname = \"evalcore_unit\"\nversion = \"0.0.0\"\n\n[dependencies]\n"
	for name, spec := range deps {
		out += fmt.Sprintf("%s = %s\n", name, spec)
	}
	return out
}
