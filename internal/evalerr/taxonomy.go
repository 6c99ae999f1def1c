package evalerr

import "fmt"

// IncompleteError signals that a fragment looks syntactically unfinished
// (unbalanced braces, an open string). Front-ends should prompt for more
// input rather than reporting a failure.
type IncompleteError struct {
	Reason string
}

func (e *IncompleteError) Error() string { return fmt.Sprintf("incomplete fragment: %s", e.Reason) }

// ParseError signals a fragment the analyzer could not structurally
// classify at all.
type ParseError struct {
	Message string
	Diag    *Diagnostic
}

func (e *ParseError) Error() string { return e.Message }

// BuildError wraps the diagnostics returned by a failed toolchain build.
// Diagnostics are already span-remapped to the user's fragment coordinates
// by the time this error is constructed.
type BuildError struct {
	Diagnostics List
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed with %d diagnostic(s)", len(e.Diagnostics))
}

// TypeAnnotationRequired signals that the toolchain could not infer a
// persistent binding's type and needs an explicit annotation from the user.
type TypeAnnotationRequired struct {
	Name string
}

func (e *TypeAnnotationRequired) Error() string {
	return fmt.Sprintf("type annotation required for binding %q", e.Name)
}

// ChildCrashed signals the execution child exited or was signalled
// mid-eval. All variables are dropped when this is returned.
type ChildCrashed struct {
	Reason string
}

func (e *ChildCrashed) Error() string { return fmt.Sprintf("child crashed: %s", e.Reason) }

// ChildPanic signals the child's entry function unwound. The variable set
// is pruned according to the panic-retention policy recorded at build time.
type ChildPanic struct {
	Message string
}

func (e *ChildPanic) Error() string { return fmt.Sprintf("child panicked: %s", e.Message) }

// Cancelled signals a user-requested interrupt of an in-flight eval.
type Cancelled struct{}

func (e *Cancelled) Error() string { return "evaluation cancelled" }

// ToolchainUnavailable signals the external build tool could not be run at
// all (not found, failed to start).
type ToolchainUnavailable struct {
	Detail string
}

func (e *ToolchainUnavailable) Error() string {
	return fmt.Sprintf("toolchain unavailable: %s", e.Detail)
}

// DirectiveError signals a directive was rejected; context state is
// unchanged.
type DirectiveError struct {
	Directive string
	Message   string
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("directive %q: %s", e.Directive, e.Message)
}

// Internal signals an invariant violation inside the core itself. It is
// never silently swallowed: it is returned like any other error. No debug
// switch changes that; nothing in the core panics on it.
type Internal struct {
	Detail string
}

func (e *Internal) Error() string { return fmt.Sprintf("internal error: %s", e.Detail) }
