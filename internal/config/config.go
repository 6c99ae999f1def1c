// Package config resolves per-user configuration files (init.hl,
// prelude.hl, project.toml) and watches them for edits so a long-lived
// EvalContext can pick up directive defaults without restarting.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/orbit-lang/evalcore/internal/evallog"
)

// ProjectConfig mirrors the overrides accepted in project.toml.
type ProjectConfig struct {
	TargetDir string `toml:"target_dir"`
	Toolchain string `toml:"toolchain"`
	Linker    string `toml:"linker"`
	Offline   bool   `toml:"offline"`
	OptLevel  int    `toml:"opt_level"`
}

// Dir resolves the per-user config directory, honoring EVALCORE_CONFIG_DIR
// before falling back to os.UserConfigDir().
func Dir() (string, error) {
	if override := os.Getenv("EVALCORE_CONFIG_DIR"); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "evalcore"), nil
}

// Paths are the three well-known configuration files, all optional.
type Paths struct {
	Init    string // one directive per line, executed at startup
	Prelude string // HL source evaluated at startup
	Project string // project.toml overrides
}

// Resolve returns the Paths rooted at Dir(), without checking existence.
func Resolve() (Paths, error) {
	dir, err := Dir()
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		Init:    filepath.Join(dir, "init.hl"),
		Prelude: filepath.Join(dir, "prelude.hl"),
		Project: filepath.Join(dir, "project.toml"),
	}, nil
}

// LoadProject reads and parses project.toml if present, returning the zero
// value when the file does not exist.
func LoadProject(path string) (ProjectConfig, error) {
	var cfg ProjectConfig
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}

// ReadOptional returns a file's contents, or "" if it does not exist.
func ReadOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Watcher watches the resolved configuration files for edits and invokes
// onChange with the path that changed.
type Watcher struct {
	fsw    *fsnotify.Watcher
	logger *evallog.Logger
	done   chan struct{}
}

// Watch starts watching the directories containing paths.Init, .Prelude,
// and .Project (fsnotify watches directories, not individual files, so
// editors that write-via-rename are still observed).
func Watch(paths Paths, logger *evallog.Logger, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := map[string]struct{}{
		filepath.Dir(paths.Init):    {},
		filepath.Dir(paths.Prelude): {},
		filepath.Dir(paths.Project): {},
	}
	for dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			_ = fsw.Add(dir)
		}
	}

	w := &Watcher{fsw: fsw, logger: logger, done: make(chan struct{})}
	watched := map[string]struct{}{
		paths.Init:    {},
		paths.Prelude: {},
		paths.Project: {},
	}

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if _, interesting := watched[event.Name]; interesting && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange(event.Name)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Warn(evallog.CategoryConfig, "watch error: %v", err)
				}
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
