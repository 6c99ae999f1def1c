package toolchain

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/orbit-lang/evalcore/internal/evalerr"
)

func TestBuildReportsToolchainUnavailableWhenToolMissing(t *testing.T) {
	_, diags, err := Build(context.Background(), t.TempDir(), "eval_entry", Config{ToolPath: "hlc-does-not-exist-anywhere"}, nil)
	if err == nil {
		t.Fatal("expected an error when the build tool is not on PATH")
	}
	if _, ok := err.(*evalerr.ToolchainUnavailable); !ok {
		t.Fatalf("expected *evalerr.ToolchainUnavailable, got %T", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %d", len(diags))
	}
}

func TestBuildReportsToolchainUnavailableOnNonzeroExitWithoutDiagnostics(t *testing.T) {
	toolPath, err := exec.LookPath("false")
	if err != nil {
		t.Skip(`no "false" binary on PATH`)
	}
	_, diags, buildErr := Build(context.Background(), t.TempDir(), "eval_entry", Config{ToolPath: toolPath}, nil)
	if buildErr == nil {
		t.Fatal("expected an error when the build tool exits nonzero with no diagnostics")
	}
	if _, ok := buildErr.(*evalerr.ToolchainUnavailable); !ok {
		t.Fatalf("expected *evalerr.ToolchainUnavailable, got %T (%v)", buildErr, buildErr)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %d", len(diags))
	}
}

func TestIsProgressOnly(t *testing.T) {
	if !isProgressOnly(rawDiagnostic{Message: "Compiling unit v0.1.0"}) {
		t.Fatal("expected a bare message with no severity to be progress-only")
	}
	if isProgressOnly(rawDiagnostic{Severity: "error", Message: "mismatched types"}) {
		t.Fatal("a diagnostic with a severity must not be treated as progress")
	}
}

func TestToDiagnosticMapsSeverity(t *testing.T) {
	cases := map[string]evalerr.Severity{
		"warning": evalerr.SeverityWarning,
		"note":    evalerr.SeverityNote,
		"help":    evalerr.SeverityNote,
		"error":   evalerr.SeverityError,
		"":        evalerr.SeverityError,
	}
	for raw, want := range cases {
		d := toDiagnostic(rawDiagnostic{Severity: raw, Message: "x"})
		if d.Severity != want {
			t.Errorf("severity %q: got %v, want %v", raw, d.Severity, want)
		}
	}
}

func TestToDiagnosticCarriesFirstSpan(t *testing.T) {
	raw := rawDiagnostic{Severity: "error", Message: "mismatched types"}
	raw.Spans = append(raw.Spans, struct {
		File        string `json:"file"`
		ByteStart   int    `json:"byte_start"`
		ByteEnd     int    `json:"byte_end"`
		LineStart   int    `json:"line_start"`
		ColumnStart int    `json:"column_start"`
		LineEnd     int    `json:"line_end"`
		ColumnEnd   int    `json:"column_end"`
	}{LineStart: 3, ColumnStart: 5, LineEnd: 3, ColumnEnd: 9})

	d := toDiagnostic(raw)
	if d.Span.Start.Line != 3 || d.Span.Start.Column != 5 {
		t.Fatalf("unexpected span: %+v", d.Span)
	}
}

func TestLocateArtifactMissingReportsInternalError(t *testing.T) {
	_, err := locateArtifact(t.TempDir())
	if _, ok := err.(*evalerr.Internal); !ok {
		t.Fatalf("expected *evalerr.Internal, got %T (%v)", err, err)
	}
}

func TestLocateArtifactFound(t *testing.T) {
	dir := t.TempDir()
	debugDir := filepath.Join(dir, "debug")
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		t.Fatal(err)
	}
	libName := "libevalcore_unit.so"
	switch runtime.GOOS {
	case "darwin":
		libName = "libevalcore_unit.dylib"
	case "windows":
		libName = "evalcore_unit.dll"
	}
	if err := os.WriteFile(filepath.Join(debugDir, libName), []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := locateArtifact(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != libName {
		t.Fatalf("unexpected artifact path: %s", path)
	}
}

func TestProbeLinkerHonorsExplicitOverride(t *testing.T) {
	got := ProbeLinker(Config{Linker: "gold"})
	if got != "gold" {
		t.Fatalf("expected explicit linker override to win, got %q", got)
	}
}
