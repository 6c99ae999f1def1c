// Package directive interprets the small configuration sublanguage of
// leading-colon directives (dependency add, option toggles, introspection).
//
// Dispatch uses a name -> handler table, the same shape as a preprocessor's
// switch over define/undef/ifdef/ifndef/else/endif/if, and the same
// "unknown directive is a soft, reported, non-fatal error" policy a
// preprocessor applies to an unrecognized directive.
package directive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orbit-lang/evalcore/internal/composer"
	"github.com/orbit-lang/evalcore/internal/evalerr"
)

// Options are the EvalContext-wide toggles directives mutate, independent
// of ComposerState.
type Options struct {
	OptLevel           int
	DisplayFormat      string
	ErrorFormat        string
	Linker             string
	Toolchain          string
	Offline            bool
	PreserveOnPanic    bool
	CacheMB            int
	Timing             bool
	ShowTypes          bool
	Env                map[string]string
	BuildEnv           map[string]string
	LastCompileDir     string
	LastErrorJSON      string
	LastErrorCode      string
}

// NewOptions returns the documented defaults: preserve-on-panic is on by
// default, optimization level 0, no cache.
func NewOptions() *Options {
	return &Options{
		PreserveOnPanic: true,
		Env:             make(map[string]string),
		BuildEnv:        make(map[string]string),
	}
}

// Result is what running one directive produced, for the orchestrator to
// fold into an EvalOutcome.
type Result struct {
	Message      string   // e.g. the :vars / :type / :help / :version output
	TriggersBuild bool     // :dep changes require a rebuild on next eval
	Quit         bool     // :quit
}

// Handler executes one directive against state/opts and a type/value
// lookup supplied by the caller (variables() yields (name,type) pairs
// currently bound, for :vars/:type).
type Handler func(argv string, state *composer.State, opts *Options, variables func() []VarInfo) (Result, error)

// VarInfo is one (name, type) pair reported by the child's store.
type VarInfo struct {
	Name string
	Type string
}

var table = map[string]Handler{
	"dep":                    handleDep,
	"vars":                   handleVars,
	"clear":                  handleClear,
	"opt":                    handleOpt,
	"fmt":                    handleFmt,
	"efmt":                   handleEfmt,
	"linker":                 handleLinker,
	"toolchain":               handleToolchain,
	"offline":                handleOffline,
	"preserve_vars_on_panic": handlePreserve,
	"cache":                  handleCache,
	"timing":                 handleTiming,
	"types":                  handleTypes,
	"type":                   handleType,
	"env":                    handleEnv,
	"build_env":              handleBuildEnv,
	"explain":                handleExplain,
	"last_compile_dir":       handleLastCompileDir,
	"last_error_json":        handleLastErrorJSON,
	"quit":                   handleQuit,
	"version":                handleVersion,
}

// help is registered in init because handleHelp itself reads table.
func init() {
	table["help"] = handleHelp
}

// Dispatch runs the named directive. An unrecognized name is a soft,
// reported, non-fatal DirectiveError rather than aborting the eval.
func Dispatch(name, argv string, state *composer.State, opts *Options, variables func() []VarInfo) (Result, error) {
	handler, ok := table[name]
	if !ok {
		return Result{}, &evalerr.DirectiveError{Directive: name, Message: "unknown directive"}
	}
	return handler(argv, state, opts, variables)
}

func handleDep(argv string, state *composer.State, _ *Options, _ func() []VarInfo) (Result, error) {
	name, spec, ok := strings.Cut(argv, "=")
	if !ok {
		return Result{}, &evalerr.DirectiveError{Directive: "dep", Message: "usage: :dep NAME = SPEC"}
	}
	name = strings.TrimSpace(name)
	spec = strings.TrimSpace(spec)
	if name == "" {
		return Result{}, &evalerr.DirectiveError{Directive: "dep", Message: "missing dependency name"}
	}

	depSpec, err := parseDepSpec(spec)
	if err != nil {
		return Result{}, &evalerr.DirectiveError{Directive: "dep", Message: err.Error()}
	}
	state.Dependencies[name] = depSpec
	return Result{TriggersBuild: true}, nil
}

// parseDepSpec tokenizes a `"1.0"` literal, a bare path shorthand, or an
// inline `{ key = val, ... }` table.
func parseDepSpec(spec string) (composer.DependencySpec, error) {
	if strings.HasPrefix(spec, "\"") && strings.HasSuffix(spec, "\"") {
		return composer.DependencySpec{Version: strings.Trim(spec, "\"")}, nil
	}
	if !strings.HasPrefix(spec, "{") {
		return composer.DependencySpec{Path: spec}, nil
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(spec, "{"), "}")
	var out composer.DependencySpec
	for _, pair := range splitTopLevelCommas(inner) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.Trim(strings.TrimSpace(v), "\"")
		switch k {
		case "version":
			out.Version = v
		case "path":
			out.Path = v
		case "git":
			out.Git = v
		case "features":
			out.Features = strings.Split(strings.Trim(v, "[]"), ",")
		}
	}
	return out, nil
}

func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '[', '{':
			depth++
		case ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func handleVars(_ string, _ *composer.State, _ *Options, variables func() []VarInfo) (Result, error) {
	var sb strings.Builder
	for _, v := range variables() {
		fmt.Fprintf(&sb, "%s: %s\n", v.Name, v.Type)
	}
	return Result{Message: sb.String()}, nil
}

func handleClear(_ string, state *composer.State, _ *Options, _ func() []VarInfo) (Result, error) {
	state.Clear()
	return Result{}, nil
}

func handleOpt(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	n, err := strconv.Atoi(strings.TrimSpace(argv))
	if err != nil || n < 0 || n > 3 {
		return Result{}, &evalerr.DirectiveError{Directive: "opt", Message: "expected an integer 0..3"}
	}
	opts.OptLevel = n
	return Result{TriggersBuild: true}, nil
}

func handleFmt(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	opts.DisplayFormat = strings.TrimSpace(argv)
	return Result{}, nil
}

func handleEfmt(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	opts.ErrorFormat = strings.TrimSpace(argv)
	return Result{}, nil
}

func handleLinker(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	opts.Linker = strings.TrimSpace(argv)
	return Result{TriggersBuild: true}, nil
}

func handleToolchain(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	opts.Toolchain = strings.TrimSpace(argv)
	return Result{TriggersBuild: true}, nil
}

func handleOffline(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	opts.Offline = parseBoolFlag(argv, true)
	return Result{}, nil
}

func handlePreserve(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	opts.PreserveOnPanic = parseBoolFlag(argv, true)
	return Result{}, nil
}

func handleCache(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	n, err := strconv.Atoi(strings.TrimSpace(argv))
	if err != nil || n < 0 {
		return Result{}, &evalerr.DirectiveError{Directive: "cache", Message: "expected a non-negative integer"}
	}
	opts.CacheMB = n
	return Result{}, nil
}

func handleTiming(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	opts.Timing = parseBoolFlag(argv, !opts.Timing)
	return Result{}, nil
}

func handleTypes(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	opts.ShowTypes = parseBoolFlag(argv, !opts.ShowTypes)
	return Result{}, nil
}

func handleType(argv string, _ *composer.State, _ *Options, variables func() []VarInfo) (Result, error) {
	name := strings.TrimSpace(argv)
	for _, v := range variables() {
		if v.Name == name {
			return Result{Message: v.Type}, nil
		}
	}
	return Result{}, &evalerr.DirectiveError{Directive: "type", Message: fmt.Sprintf("no such variable %q", name)}
}

func handleEnv(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	k, v, ok := strings.Cut(argv, "=")
	if !ok {
		return Result{}, &evalerr.DirectiveError{Directive: "env", Message: "usage: :env K=V"}
	}
	opts.Env[strings.TrimSpace(k)] = strings.TrimSpace(v)
	return Result{}, nil
}

func handleBuildEnv(argv string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	k, v, ok := strings.Cut(argv, "=")
	if !ok {
		return Result{}, &evalerr.DirectiveError{Directive: "build_env", Message: "usage: :build_env K=V"}
	}
	opts.BuildEnv[strings.TrimSpace(k)] = strings.TrimSpace(v)
	return Result{TriggersBuild: true}, nil
}

func handleExplain(_ string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	if opts.LastErrorCode == "" {
		return Result{Message: "no error code recorded for this session yet"}, nil
	}
	return Result{Message: fmt.Sprintf("run `hlc --explain %s` for a full explanation of this error code", opts.LastErrorCode)}, nil
}

func handleLastCompileDir(_ string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	return Result{Message: opts.LastCompileDir}, nil
}

func handleLastErrorJSON(_ string, _ *composer.State, opts *Options, _ func() []VarInfo) (Result, error) {
	return Result{Message: opts.LastErrorJSON}, nil
}

func handleQuit(string, *composer.State, *Options, func() []VarInfo) (Result, error) {
	return Result{Quit: true}, nil
}

func handleHelp(string, *composer.State, *Options, func() []VarInfo) (Result, error) {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	return Result{Message: "recognized directives: " + strings.Join(names, ", ")}, nil
}

func handleVersion(string, *composer.State, *Options, func() []VarInfo) (Result, error) {
	return Result{Message: "evalcore"}, nil
}

func parseBoolFlag(argv string, defaultWhenEmpty bool) bool {
	v := strings.TrimSpace(argv)
	if v == "" {
		return defaultWhenEmpty
	}
	return v == "1" || strings.EqualFold(v, "true")
}
