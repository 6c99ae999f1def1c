package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDirHonorsEnvOverride(t *testing.T) {
	t.Setenv("EVALCORE_CONFIG_DIR", "/tmp/evalcore-test-config")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if dir != "/tmp/evalcore-test-config" {
		t.Fatalf("expected override to win, got %q", dir)
	}
}

func TestResolveJoinsWellKnownFilenames(t *testing.T) {
	t.Setenv("EVALCORE_CONFIG_DIR", "/tmp/evalcore-test-config")
	paths, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(paths.Init) != "init.hl" || filepath.Base(paths.Prelude) != "prelude.hl" || filepath.Base(paths.Project) != "project.toml" {
		t.Fatalf("unexpected paths: %+v", paths)
	}
}

func TestLoadProjectMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := LoadProject(filepath.Join(t.TempDir(), "project.toml"))
	if err != nil {
		t.Fatalf("unexpected error for a missing file: %v", err)
	}
	if cfg != (ProjectConfig{}) {
		t.Fatalf("expected zero value, got %+v", cfg)
	}
}

func TestLoadProjectParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.toml")
	contents := "target_dir = \"target\"\ntoolchain = \"stable\"\noffline = true\nopt_level = 2\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if cfg.TargetDir != "target" || cfg.Toolchain != "stable" || !cfg.Offline || cfg.OptLevel != 2 {
		t.Fatalf("unexpected parsed config: %+v", cfg)
	}
}

func TestReadOptionalMissingFileReturnsEmptyString(t *testing.T) {
	s, err := ReadOptional(filepath.Join(t.TempDir(), "init.hl"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string, got %q", s)
	}
}

func TestWatchNotifiesOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	paths := Paths{
		Init:    filepath.Join(dir, "init.hl"),
		Prelude: filepath.Join(dir, "prelude.hl"),
		Project: filepath.Join(dir, "project.toml"),
	}

	changed := make(chan string, 1)
	w, err := Watch(paths, nil, func(path string) {
		select {
		case changed <- path:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(paths.Init, []byte(":opt 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if got != paths.Init {
			t.Fatalf("unexpected changed path: %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a watch notification")
	}
}
