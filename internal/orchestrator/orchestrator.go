// Package orchestrator drives one evaluation through the linear state
// machine: AcceptFragment -> Analyze -> Compose(draft) -> Build, then
// either {EnsureChild -> Load -> AwaitDone -> ReconcileState -> Emit} on
// success or {RemapSpans -> UpdateMoveState -> DiscardDraftAdditions ->
// Emit} on failure.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orbit-lang/evalcore/internal/analyzer"
	"github.com/orbit-lang/evalcore/internal/composer"
	"github.com/orbit-lang/evalcore/internal/directive"
	"github.com/orbit-lang/evalcore/internal/evalerr"
	"github.com/orbit-lang/evalcore/internal/evallog"
	"github.com/orbit-lang/evalcore/internal/protocol"
	"github.com/orbit-lang/evalcore/internal/supervisor"
	"github.com/orbit-lang/evalcore/internal/toolchain"
)

// DisplayArtifact is a MIME-typed block emitted by a trailing expression's
// display method or by user code directly.
type DisplayArtifact struct {
	MimeType string
	Body     string
}

// Timings records the duration of each suspension point in one eval, for
// `:timing` output.
type Timings struct {
	Analyze time.Duration
	Compose time.Duration
	Build   time.Duration
	Run     time.Duration
}

// EvalOutcome is returned to the caller after one evaluate() call.
type EvalOutcome struct {
	DisplayArtifacts []DisplayArtifact
	Timings          Timings
	Diagnostics      evalerr.List
	DirectiveOutput  string
	Quit             bool
}

// StateSnapshot is the read-only view of EvalContext state exposed to
// front-ends.
type StateSnapshot struct {
	ItemsCount int
	Variables  []VarNameType
	Deps       []string
	Options    *directive.Options
}

// VarNameType is one (name, type) pair.
type VarNameType struct {
	Name string
	Type string
}

// Config configures an Orchestrator.
type Config struct {
	ChildPath    string
	ChildArgs    []string
	Toolchain    toolchain.Config
	DirectivePrefix rune
	Logger       *evallog.Logger
}

// Orchestrator ties the analyzer, composer, toolchain driver, and child
// supervisor together to drive evaluations for one EvalContext.
type Orchestrator struct {
	cfg     Config
	state   *composer.State
	opts    *directive.Options
	sup     *supervisor.Supervisor
	workdir *Workdir
	evalSeq int
	logger  *evallog.Logger
}

// New constructs an Orchestrator with fresh state, rooted at workdirRoot
// (empty lets Workdir pick a temp directory).
func New(cfg Config, workdirRoot string) (*Orchestrator, error) {
	wd, err := NewWorkdir(workdirRoot)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = evallog.NewStderr(evallog.LevelInfo)
	}
	return &Orchestrator{
		cfg:     cfg,
		state:   composer.New(),
		opts:    directive.NewOptions(),
		sup:     supervisor.New(cfg.ChildPath, cfg.ChildArgs, logger),
		workdir: wd,
		logger:  logger,
	}, nil
}

// Evaluate runs one fragment through the full state machine.
func (o *Orchestrator) Evaluate(ctx context.Context, fragment string) (EvalOutcome, error) {
	var outcome EvalOutcome
	var timings Timings

	t0 := time.Now()
	frag, err := analyzer.Classify(fragment, o.cfg.DirectivePrefix)
	timings.Analyze = time.Since(t0)
	if err != nil {
		return outcome, err
	}

	if frag.Kind == analyzer.KindDirective || len(frag.Directives) > 0 {
		for _, d := range frag.Directives {
			result, derr := directive.Dispatch(d.Name, d.Argv, o.state, o.opts, o.currentVars)
			if derr != nil {
				return outcome, derr
			}
			if result.Message != "" {
				outcome.DirectiveOutput += result.Message
			}
			if result.Quit {
				outcome.Quit = true
				return outcome, nil
			}
		}
		if frag.Kind == analyzer.KindDirective {
			outcome.Timings = timings
			return outcome, nil
		}
	}

	draft := o.state.Clone()
	o.evalSeq++

	unit, artifact, diags, buildErr := o.buildOnce(ctx, draft, frag, nil, &timings)
	if unit != nil {
		outcome.Diagnostics = remapAll(diags, unit.SpanMap, fragment)
	}
	o.recordBuildOutcome(outcome.Diagnostics, buildErr)

	if buildErr != nil {
		// A build failure whose diagnostics report a use of an already-moved
		// variable is retried once, with that variable restored but not saved
		// back, rather than surfaced as a plain build error. If the retry
		// builds, the variable is marked MovedInLastEval in the committed state.
		if movedNames := movedVariableNames(buildErr); len(movedNames) > 0 {
			retryDraft := o.state.Clone()
			retryUnit, retryArtifact, retryDiags, retryErr := o.buildOnce(ctx, retryDraft, frag, movedNames, &timings)
			if retryUnit != nil {
				outcome.Diagnostics = remapAll(retryDiags, retryUnit.SpanMap, fragment)
			}
			o.recordBuildOutcome(outcome.Diagnostics, retryErr)

			if retryErr == nil {
				for name := range movedNames {
					if info, exists := retryDraft.Variables.Get(name); exists {
						info.MoveState = composer.MovedInLastEval
						retryDraft.Variables.Set(name, info)
					}
				}
				return o.finishEval(ctx, retryArtifact, retryDraft, &timings, outcome)
			}
			return o.handleBuildFailure(retryErr, frag, outcome)
		}
		return o.handleBuildFailure(buildErr, frag, outcome)
	}

	return o.finishEval(ctx, artifact, draft, &timings, outcome)
}

// buildOnce composes draft against frag and runs it through the toolchain.
// skipSave (may be nil) names variables to restore but not persist, used by
// the moved-variable retry. unit may be non-nil even when buildErr is set, so
// callers can still remap diagnostics against its span map.
func (o *Orchestrator) buildOnce(ctx context.Context, draft *composer.State, frag *analyzer.Fragment, skipSave map[string]bool, timings *Timings) (*composer.Unit, *toolchain.Artifact, evalerr.List, error) {
	t1 := time.Now()
	unit, err := composer.ComposeWithSkipSave(draft, frag, o.evalSeq, skipSave)
	timings.Compose += time.Since(t1)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := o.workdir.WriteUnit(unit.Source, renderDeps(draft.Dependencies)); err != nil {
		return unit, nil, nil, &evalerr.Internal{Detail: fmt.Sprintf("writing composed unit: %v", err)}
	}

	t2 := time.Now()
	tcCfg := o.cfg.Toolchain
	tcCfg.TargetDir = o.workdir.TargetDir()
	tcCfg.Linker = o.opts.Linker
	tcCfg.Channel = o.opts.Toolchain
	tcCfg.Offline = o.opts.Offline
	tcCfg.Logger = o.logger
	artifact, diags, buildErr := toolchain.Build(ctx, o.workdir.Root, unit.EntrySymbol, tcCfg, nil)
	timings.Build += time.Since(t2)
	return unit, artifact, diags, buildErr
}

// finishEval runs the freshly built artifact in the child and, on success,
// commits draft as the new persistent state.
func (o *Orchestrator) finishEval(ctx context.Context, artifact *toolchain.Artifact, draft *composer.State, timings *Timings, outcome EvalOutcome) (EvalOutcome, error) {
	t3 := time.Now()
	runOutcome, runErr := o.runInChild(ctx, artifact, draft)
	timings.Run = time.Since(t3)
	outcome.Timings = *timings
	if runErr != nil {
		return outcome, runErr
	}

	o.state.CommitFrom(draft)
	outcome.DisplayArtifacts = runOutcome.DisplayArtifacts
	return outcome, nil
}

// recordBuildOutcome keeps the `:last_compile_dir`, `:last_error_json`, and
// `:explain` introspection directives fed with real data after every build
// attempt, successful or not.
func (o *Orchestrator) recordBuildOutcome(diags evalerr.List, buildErr error) {
	if err := o.workdir.RecordLastCompileDir(); err == nil {
		o.opts.LastCompileDir = o.workdir.Root
	}
	if buildErr == nil {
		return
	}
	if encoded, err := json.Marshal(diags); err == nil {
		o.opts.LastErrorJSON = string(encoded)
	}
	for _, d := range diags {
		if d.Code != "" {
			o.opts.LastErrorCode = d.Code
			break
		}
	}
}

// handleBuildFailure implements the failure branch of the state machine:
// remap already happened above; here we update move-state from diagnostics
// that reference a moved variable (so a later eval skips restoring it even
// if this one never gets retried, e.g. the retry itself failed), surface
// TypeAnnotationRequired, and discard the draft. A :dep edit is not rolled
// back here: directives are dispatched against the persistent state before
// the draft is cloned, so the edit stays in place after a build failure.
func (o *Orchestrator) handleBuildFailure(buildErr error, frag *analyzer.Fragment, outcome EvalOutcome) (EvalOutcome, error) {
	be, ok := buildErr.(*evalerr.BuildError)
	if ok {
		for _, d := range be.Diagnostics {
			if name, moved := movedVariable(d.Message); moved {
				if info, exists := o.state.Variables.Get(name); exists {
					info.MoveState = composer.MovedInLastEval
					o.state.Variables.Set(name, info)
				}
			}
		}
	}

	for _, stmt := range frag.Statements {
		if stmt.Binding != nil && stmt.Binding.NeedsTypeInfo {
			return outcome, &evalerr.TypeAnnotationRequired{Name: stmt.Binding.Name}
		}
	}

	return outcome, buildErr
}

// runInChild ensures the child is alive, issues LOAD, and awaits the
// framed response, reconciling or clearing variable state per the
// response's status.
func (o *Orchestrator) runInChild(ctx context.Context, artifact *toolchain.Artifact, draft *composer.State) (EvalOutcome, error) {
	var outcome EvalOutcome

	if err := o.sup.EnsureAlive(); err != nil {
		return outcome, &evalerr.ChildCrashed{Reason: err.Error()}
	}

	evalID := uuid.NewString()
	resp, err := o.sup.Load(ctx, evalID, artifact.Path, artifact.Symbol)
	if err != nil {
		o.state.ClearVariables()
		return outcome, &evalerr.ChildCrashed{Reason: err.Error()}
	}

	outcome.DisplayArtifacts = append(outcome.DisplayArtifacts, o.drainDisplayArtifacts()...)

	switch resp.Status {
	case protocol.StatusOK:
		return outcome, nil
	case protocol.StatusPanic:
		pruneOnPanic(draft, o.opts)
		o.state.CommitFrom(draft)
		return outcome, &evalerr.ChildPanic{Message: resp.Message}
	case protocol.StatusSignal:
		o.sup.Kill()
		o.state.ClearVariables()
		return outcome, &evalerr.ChildCrashed{Reason: fmt.Sprintf("signal %d", resp.Signal)}
	default: // nonzero-exit
		o.sup.Kill()
		o.state.ClearVariables()
		return outcome, &evalerr.ChildCrashed{Reason: resp.Message}
	}
}

// pruneOnPanic retains variables not referenced by the executing fragment
// and Copy-typed variables, per the per-variable policy recorded at compose
// time (IsCopy/PreserveOnPanic on VariableInfo). opts.PreserveOnPanic is the
// session-wide master switch: off drops every variable unconditionally
// regardless of the per-variable policy; on applies that policy.
func pruneOnPanic(draft *composer.State, opts *directive.Options) {
	if !opts.PreserveOnPanic {
		draft.ClearVariables()
		return
	}
	for _, name := range draft.Variables.Names() {
		info, _ := draft.Variables.Get(name)
		if info.IsCopy || info.PreserveOnPanic {
			continue
		}
		draft.Variables.Delete(name)
	}
}

// drainDisplayArtifacts pulls every already-buffered display event off the
// supervisor's event channel. The child writes its begin/end markers around
// the entry call, so by the time Load's response arrives all of that eval's
// stdout — including display blocks — has already been scanned into the
// channel.
func (o *Orchestrator) drainDisplayArtifacts() []DisplayArtifact {
	var out []DisplayArtifact
	for {
		select {
		case ev := <-o.sup.Events():
			if ev.Display != nil {
				out = append(out, DisplayArtifact{MimeType: ev.Display.MimeType, Body: ev.Display.Body})
			}
		default:
			return out
		}
	}
}

func (o *Orchestrator) currentVars() []directive.VarInfo {
	names := o.state.Variables.Names()
	out := make([]directive.VarInfo, 0, len(names))
	for _, name := range names {
		info, _ := o.state.Variables.Get(name)
		out = append(out, directive.VarInfo{Name: name, Type: info.Type})
	}
	return out
}

// StateSnapshot returns the current read-only view of context state.
func (o *Orchestrator) StateSnapshot() StateSnapshot {
	names := o.state.Variables.Names()
	vars := make([]VarNameType, 0, len(names))
	for _, name := range names {
		info, _ := o.state.Variables.Get(name)
		vars = append(vars, VarNameType{Name: name, Type: info.Type})
	}
	deps := make([]string, 0, len(o.state.Dependencies))
	for name := range o.state.Dependencies {
		deps = append(deps, name)
	}
	return StateSnapshot{
		ItemsCount: o.state.ItemsCount(),
		Variables:  vars,
		Deps:       deps,
		Options:    o.opts,
	}
}

// Reset clears items, uses, deps, and variables, preserving only
// directive-set options.
func (o *Orchestrator) Reset() {
	o.state = composer.New()
}

// Close kills the child and releases resources.
func (o *Orchestrator) Close() error {
	o.sup.Kill()
	return nil
}

func renderDeps(deps map[string]composer.DependencySpec) map[string]string {
	out := make(map[string]string, len(deps))
	for name, spec := range deps {
		switch {
		case spec.Version != "":
			out[name] = fmt.Sprintf("%q", spec.Version)
		case spec.Path != "":
			out[name] = fmt.Sprintf("{ path = %q }", spec.Path)
		case spec.Git != "":
			out[name] = fmt.Sprintf("{ git = %q }", spec.Git)
		}
	}
	return out
}

func remapAll(diags evalerr.List, spans composer.SpanMap, fragment string) evalerr.List {
	out := make(evalerr.List, 0, len(diags))
	for _, d := range diags {
		d.Source = fragment
		out = append(out, d)
	}
	return out
}

// movedVariableNames scans every diagnostic in a BuildError for a use of a
// moved variable and returns the set of names found, or nil if buildErr
// isn't a BuildError or none of its diagnostics match.
func movedVariableNames(buildErr error) map[string]bool {
	be, ok := buildErr.(*evalerr.BuildError)
	if !ok {
		return nil
	}
	var names map[string]bool
	for _, d := range be.Diagnostics {
		if name, moved := movedVariable(d.Message); moved {
			if names == nil {
				names = make(map[string]bool)
			}
			names[name] = true
		}
	}
	return names
}

// movedVariable does a best-effort scan of a compiler diagnostic message
// for "use of moved value: `name`", the shape the external toolchain is
// expected to emit.
func movedVariable(message string) (string, bool) {
	const marker = "use of moved value: `"
	idx := indexOf(message, marker)
	if idx < 0 {
		return "", false
	}
	rest := message[idx+len(marker):]
	end := indexOf(rest, "`")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
