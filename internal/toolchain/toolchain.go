// Package toolchain invokes the external HL build tool, parses its JSON
// diagnostic stream, and locates the shared object it produces.
package toolchain

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/orbit-lang/evalcore/internal/evalerr"
	"github.com/orbit-lang/evalcore/internal/evallog"
)

// Config selects how the external build tool is invoked.
type Config struct {
	ToolPath string // defaults to "hlc" on PATH
	TargetDir string
	Offline   bool
	Channel   string // compiler channel/toolchain name, e.g. "stable"
	Linker    string // explicit linker override; empty means auto-probe
	Timeout   time.Duration
	Logger    *evallog.Logger
}

// Artifact is a successfully compiled shared object plus the entry symbol
// the caller asked the compose step to emit.
type Artifact struct {
	Path   string
	Symbol string
}

// ProgressEvent is a streamed "Compiling X" style notice, delivered before
// the final build result so interactive front-ends can show feedback on
// slow first builds.
type ProgressEvent struct {
	Message string
}

// rawDiagnostic mirrors the external tool's one-diagnostic-per-line JSON
// wire format.
type rawDiagnostic struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Code     string `json:"code"`
	Spans    []struct {
		File        string `json:"file"`
		ByteStart   int    `json:"byte_start"`
		ByteEnd     int    `json:"byte_end"`
		LineStart   int    `json:"line_start"`
		ColumnStart int    `json:"column_start"`
		LineEnd     int    `json:"line_end"`
		ColumnEnd   int    `json:"column_end"`
	} `json:"spans"`
}

var defaultLinkers = map[string][]string{
	"linux":  {"mold", "lld"},
	"darwin": {"lld"},
}

// ProbeLinker returns cfg.Linker if explicitly set, otherwise the first
// faster alternative linker found on PATH for the current platform, falling
// back to "" (system default) when none is found or the platform is known
// to have trouble with them.
func ProbeLinker(cfg Config) string {
	if cfg.Linker != "" {
		return cfg.Linker
	}
	candidates := defaultLinkers[runtime.GOOS]
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// Build invokes the external build tool against projectDir, streaming
// progress events on progress (which may be nil) and returning either a
// built Artifact or the diagnostics that rejected the build.
func Build(ctx context.Context, projectDir, entrySymbol string, cfg Config, progress chan<- ProgressEvent) (*Artifact, evalerr.List, error) {
	toolPath := cfg.ToolPath
	if toolPath == "" {
		toolPath = "hlc"
	}
	if _, err := exec.LookPath(toolPath); err != nil {
		return nil, nil, &evalerr.ToolchainUnavailable{Detail: fmt.Sprintf("%s not found on PATH", toolPath)}
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	args := []string{"build", "--message-format=json-diagnostic-short", "--manifest-path", filepath.Join(projectDir, "Hl.toml")}
	if cfg.TargetDir != "" {
		args = append(args, "--target-dir", cfg.TargetDir)
	}
	if cfg.Offline {
		args = append(args, "--offline")
	}
	if cfg.Channel != "" {
		args = append(args, "--toolchain", cfg.Channel)
	}
	if linker := ProbeLinker(cfg); linker != "" {
		args = append(args, "--linker", linker)
	}

	cmd := exec.CommandContext(ctx, toolPath, args...)
	cmd.Dir = projectDir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, &evalerr.ToolchainUnavailable{Detail: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, &evalerr.ToolchainUnavailable{Detail: err.Error()}
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, &evalerr.ToolchainUnavailable{Detail: err.Error()}
	}

	var diags evalerr.List
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			var raw rawDiagnostic
			if json.Unmarshal(line, &raw) != nil {
				if progress != nil {
					progress <- ProgressEvent{Message: string(line)}
				}
				continue
			}
			if isProgressOnly(raw) {
				if progress != nil {
					progress <- ProgressEvent{Message: raw.Message}
				}
				continue
			}
			diags = append(diags, toDiagnostic(raw))
		}
	}()

	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if cfg.Logger != nil {
				cfg.Logger.Debug(evallog.CategoryToolchain, "%s", scanner.Text())
			}
		}
	}()

	waitErr := cmd.Wait()
	<-done

	if ctx.Err() == context.DeadlineExceeded {
		return nil, nil, &evalerr.ToolchainUnavailable{Detail: fmt.Sprintf("build timed out after %s", cfg.Timeout)}
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			if len(diags) > 0 {
				return nil, diags, &evalerr.BuildError{Diagnostics: diags}
			}
			return nil, nil, &evalerr.ToolchainUnavailable{Detail: fmt.Sprintf("build tool exited with status %d", exitErr.ExitCode())}
		}
		return nil, nil, &evalerr.ToolchainUnavailable{Detail: waitErr.Error()}
	}

	if diags.HasErrors() {
		return nil, diags, &evalerr.BuildError{Diagnostics: diags}
	}

	artifactPath, err := locateArtifact(cfg.TargetDir)
	if err != nil {
		return nil, diags, err
	}
	return &Artifact{Path: artifactPath, Symbol: entrySymbol}, diags, nil
}

func isProgressOnly(raw rawDiagnostic) bool {
	return raw.Severity == "" && raw.Message != ""
}

func toDiagnostic(raw rawDiagnostic) *evalerr.Diagnostic {
	sev := evalerr.SeverityError
	switch raw.Severity {
	case "warning":
		sev = evalerr.SeverityWarning
	case "note", "help":
		sev = evalerr.SeverityNote
	}
	d := &evalerr.Diagnostic{
		Severity: sev,
		Origin:   evalerr.OriginToolchain,
		Message:  raw.Message,
		Code:     raw.Code,
	}
	if len(raw.Spans) > 0 {
		s := raw.Spans[0]
		d.Span = evalerr.Span{
			Start: evalerr.Position{Line: s.LineStart, Column: s.ColumnStart},
			End:   evalerr.Position{Line: s.LineEnd, Column: s.ColumnEnd},
		}
	}
	return d
}

func locateArtifact(targetDir string) (string, error) {
	libName := "libevalcore_unit.so"
	switch runtime.GOOS {
	case "darwin":
		libName = "libevalcore_unit.dylib"
	case "windows":
		libName = "evalcore_unit.dll"
	}
	path := filepath.Join(targetDir, "debug", libName)
	if _, err := os.Stat(path); err != nil {
		return "", &evalerr.Internal{Detail: fmt.Sprintf("build reported success but artifact missing at %s", path)}
	}
	return path, nil
}
