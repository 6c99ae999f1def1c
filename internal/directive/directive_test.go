package directive

import (
	"strings"
	"testing"

	"github.com/orbit-lang/evalcore/internal/composer"
	"github.com/orbit-lang/evalcore/internal/evalerr"
)

func noVars() []VarInfo { return nil }

func TestDepInsertsDependency(t *testing.T) {
	state := composer.New()
	result, err := Dispatch("dep", `serde = "1.0"`, state, NewOptions(), noVars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.TriggersBuild {
		t.Fatal("expected :dep to trigger a rebuild")
	}
	if state.Dependencies["serde"].Version != "1.0" {
		t.Fatalf("unexpected dependency entry: %+v", state.Dependencies["serde"])
	}
}

func TestDepInlineTable(t *testing.T) {
	state := composer.New()
	_, err := Dispatch("dep", `local = { path = "../local-crate" }`, state, NewOptions(), noVars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Dependencies["local"].Path != "../local-crate" {
		t.Fatalf("unexpected dependency entry: %+v", state.Dependencies["local"])
	}
}

func TestUnknownDirectiveIsSoftError(t *testing.T) {
	state := composer.New()
	_, err := Dispatch("nonsense", "", state, NewOptions(), noVars)
	if err == nil {
		t.Fatal("expected an error for an unknown directive")
	}
	de, ok := err.(*evalerr.DirectiveError)
	if !ok {
		t.Fatalf("expected *evalerr.DirectiveError, got %T", err)
	}
	if de.Directive != "nonsense" {
		t.Fatalf("unexpected directive name: %s", de.Directive)
	}
}

func TestOptValidatesRange(t *testing.T) {
	state := composer.New()
	opts := NewOptions()
	if _, err := Dispatch("opt", "2", state, opts, noVars); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.OptLevel != 2 {
		t.Fatalf("expected opt level 2, got %d", opts.OptLevel)
	}
	if _, err := Dispatch("opt", "9", state, opts, noVars); err == nil {
		t.Fatal("expected an error for out-of-range opt level")
	}
}

func TestPreserveVarsOnPanicDefaultsOn(t *testing.T) {
	opts := NewOptions()
	if !opts.PreserveOnPanic {
		t.Fatal("expected preserve_vars_on_panic to default to true")
	}
}

func TestVarsReportsNameAndType(t *testing.T) {
	state := composer.New()
	result, err := Dispatch("vars", "", state, NewOptions(), func() []VarInfo {
		return []VarInfo{{Name: "x", Type: "i32"}}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != "x: i32\n" {
		t.Fatalf("unexpected vars output: %q", result.Message)
	}
}

func TestQuitSignalsQuit(t *testing.T) {
	state := composer.New()
	result, err := Dispatch("quit", "", state, NewOptions(), noVars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Quit {
		t.Fatal("expected :quit to set Quit")
	}
}

func TestExplainWithNoRecordedErrorReportsSentinel(t *testing.T) {
	state := composer.New()
	result, err := Dispatch("explain", "", state, NewOptions(), noVars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != "no error code recorded for this session yet" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestExplainReportsLastErrorCode(t *testing.T) {
	state := composer.New()
	opts := NewOptions()
	opts.LastErrorCode = "E0502"
	result, err := Dispatch("explain", "", state, opts, noVars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Message, "E0502") {
		t.Fatalf("expected message to mention the last error code, got %q", result.Message)
	}
}

func TestLastCompileDirAndLastErrorJSONReportOptionsFields(t *testing.T) {
	state := composer.New()
	opts := NewOptions()
	opts.LastCompileDir = "/tmp/evalcore-123"
	opts.LastErrorJSON = `[{"message":"boom"}]`

	result, err := Dispatch("last_compile_dir", "", state, opts, noVars)
	if err != nil || result.Message != "/tmp/evalcore-123" {
		t.Fatalf("unexpected last_compile_dir result: %+v err=%v", result, err)
	}

	result, err = Dispatch("last_error_json", "", state, opts, noVars)
	if err != nil || result.Message != `[{"message":"boom"}]` {
		t.Fatalf("unexpected last_error_json result: %+v err=%v", result, err)
	}
}
