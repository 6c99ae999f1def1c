// Package evalcore is the public API of the eval-loop core: a persistent,
// incrementally-rebuilt compilation unit, typed variable storage across
// independently-compiled code loads, and crash-resilient dispatch to an
// isolated execution child.
package evalcore

import (
	"context"
	"errors"

	"github.com/orbit-lang/evalcore/internal/evallog"
	"github.com/orbit-lang/evalcore/internal/orchestrator"
	"github.com/orbit-lang/evalcore/internal/toolchain"
)

// Config configures a new EvalContext.
type Config struct {
	// ChildPath is the path to the evalcore-child binary. Defaults to
	// "evalcore-child" resolved via PATH.
	ChildPath string
	// Workdir is this context's persistent working directory. Empty
	// creates a fresh temp directory, honoring EVALCORE_TMPDIR.
	Workdir string
	// ToolPath is the external HL build tool's executable name or path.
	// Defaults to "hlc".
	ToolPath string
	// DirectivePrefix overrides the default ':' directive marker.
	DirectivePrefix rune
	// Logger receives categorized diagnostic logging; defaults to stderr.
	Logger *evallog.Logger
	// Analyzer optionally supplies real code-completion support; when nil,
	// Complete always returns ErrCompletionUnavailable.
	Analyzer LanguageAnalyzer
}

// LanguageAnalyzer is the pluggable code-completion backend. The core ships
// no default implementation; callers wire in whatever completion engine
// fits their toolchain.
type LanguageAnalyzer interface {
	Complete(ctx context.Context, fragment string, cursorByteOffset int) ([]Completion, error)
}

// Completion is one suggested replacement at the cursor.
type Completion struct {
	Replacement string
	RangeStart  int
	RangeEnd    int
	Kind        string
}

// ErrCompletionUnavailable is returned by Complete when no LanguageAnalyzer
// is configured.
var ErrCompletionUnavailable = errors.New("evalcore: no completion backend configured")

// EvalOutcome is returned by Evaluate.
type EvalOutcome = orchestrator.EvalOutcome

// StateSnapshot is returned by StateSnapshot.
type StateSnapshot = orchestrator.StateSnapshot

// EvalContext is the top-level handle: one Child Supervisor, one Code
// Composer state, one Toolchain Driver configuration, and the Directive
// Handler's option map, spanning one interactive session.
type EvalContext struct {
	orch     *orchestrator.Orchestrator
	analyzer LanguageAnalyzer
}

// New constructs an EvalContext from cfg.
func New(cfg Config) (*EvalContext, error) {
	childPath := cfg.ChildPath
	if childPath == "" {
		childPath = "evalcore-child"
	}
	toolPath := cfg.ToolPath
	if toolPath == "" {
		toolPath = "hlc"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = evallog.NewStderr(evallog.LevelInfo)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		ChildPath:       childPath,
		Toolchain:       toolchain.Config{ToolPath: toolPath, Logger: logger},
		DirectivePrefix: cfg.DirectivePrefix,
		Logger:          logger,
	}, cfg.Workdir)
	if err != nil {
		return nil, err
	}

	return &EvalContext{orch: orch, analyzer: cfg.Analyzer}, nil
}

// Evaluate submits one fragment of HL source (or directive lines) for
// evaluation and returns the outcome: display artifacts, timings,
// diagnostics, and any directive output.
func (c *EvalContext) Evaluate(ctx context.Context, fragment string) (EvalOutcome, error) {
	return c.orch.Evaluate(ctx, fragment)
}

// Complete requests completions at cursorByteOffset within fragment. With
// no LanguageAnalyzer configured this always returns a nil list and
// ErrCompletionUnavailable.
func (c *EvalContext) Complete(ctx context.Context, fragment string, cursorByteOffset int) ([]Completion, error) {
	if c.analyzer == nil {
		return nil, ErrCompletionUnavailable
	}
	return c.analyzer.Complete(ctx, fragment, cursorByteOffset)
}

// StateSnapshot returns the current read-only view of context state.
func (c *EvalContext) StateSnapshot() StateSnapshot {
	return c.orch.StateSnapshot()
}

// SetOption runs the equivalent of a `:name value` directive without
// requiring the caller to format a fragment string.
func (c *EvalContext) SetOption(name, value string) error {
	_, err := c.orch.Evaluate(context.Background(), ":"+name+" "+value)
	return err
}

// Reset clears items, uses, deps, and variables; directive-set options
// persist.
func (c *EvalContext) Reset() error {
	c.orch.Reset()
	return nil
}

// Close terminates the child process and releases the context's
// resources.
func (c *EvalContext) Close() error {
	return c.orch.Close()
}
