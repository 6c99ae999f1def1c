// Package evalerr formats diagnostics surfaced by the eval loop: compiler
// errors remapped to fragment coordinates, and internal faults raised by the
// core itself. Formatting follows the same source-line-plus-caret rendering
// regardless of which side produced the diagnostic.
package evalerr

import (
	"fmt"
	"strings"
)

// Severity classifies how a Diagnostic should be presented and whether it
// aborts the eval that produced it.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return "unknown"
	}
}

// Origin records which component raised the diagnostic, so that callers can
// decide whether it is retryable (toolchain output almost always is) or
// terminal (a supervisor fault usually is not).
type Origin int

const (
	// OriginToolchain means the diagnostic was parsed out of the external
	// build tool's output and its Span has already been remapped from
	// generated-unit coordinates back to the user's fragment.
	OriginToolchain Origin = iota
	// OriginSupervisor means the diagnostic was raised by the core itself:
	// a crashed child, a spawn failure, a protocol violation.
	OriginSupervisor
	// OriginDirective means a directive handler (:dep, :opt, ...) rejected
	// its own input before any code was ever composed.
	OriginDirective
)

// Position is a 1-indexed line/column location within a single fragment's
// original source text, as the user typed it.
type Position struct {
	Line   int
	Column int
}

// Span covers a contiguous range within one fragment. End is exclusive.
type Span struct {
	Start Position
	End   Position
}

// Diagnostic is one reportable condition produced during an eval.
type Diagnostic struct {
	Severity   Severity
	Origin     Origin
	Message    string
	FragmentID string
	Source     string // the fragment's source text, for caret rendering
	Span       Span
	Code       string // toolchain diagnostic code, e.g. "E0308"; empty for internal faults
}

// Error implements the error interface so a Diagnostic can be returned and
// compared with errors.As by callers that don't care about rendering.
func (d *Diagnostic) Error() string {
	return d.Format(false)
}

// Format renders the diagnostic with a source line and caret. color enables
// ANSI highlighting for terminal output.
func (d *Diagnostic) Format(color bool) string {
	var sb strings.Builder

	header := fmt.Sprintf("%s", d.Severity)
	if d.Code != "" {
		header = fmt.Sprintf("%s[%s]", header, d.Code)
	}
	if d.FragmentID != "" {
		sb.WriteString(fmt.Sprintf("%s: fragment %s:%d:%d\n", header, d.FragmentID, d.Span.Start.Line, d.Span.Start.Column))
	} else {
		sb.WriteString(fmt.Sprintf("%s: %d:%d\n", header, d.Span.Start.Line, d.Span.Start.Column))
	}

	if line := d.sourceLine(d.Span.Start.Line); line != "" {
		gutter := fmt.Sprintf("%4d | ", d.Span.Start.Line)
		sb.WriteString(gutter)
		sb.WriteString(line)
		sb.WriteString("\n")

		caretCol := d.Span.Start.Column - 1
		if caretCol < 0 {
			caretCol = 0
		}
		sb.WriteString(strings.Repeat(" ", len(gutter)+caretCol))
		width := 1
		if d.Span.End.Line == d.Span.Start.Line && d.Span.End.Column > d.Span.Start.Column {
			width = d.Span.End.Column - d.Span.Start.Column
		}
		if color {
			sb.WriteString(severityColor(d.Severity))
		}
		sb.WriteString(strings.Repeat("^", width))
		if color {
			sb.WriteString("\033[0m")
		}
		sb.WriteString("\n")
	}

	if color {
		sb.WriteString("\033[1m")
	}
	sb.WriteString(d.Message)
	if color {
		sb.WriteString("\033[0m")
	}
	return sb.String()
}

func severityColor(s Severity) string {
	switch s {
	case SeverityError:
		return "\033[1;31m"
	case SeverityWarning:
		return "\033[1;33m"
	default:
		return "\033[1;36m"
	}
}

func (d *Diagnostic) sourceLine(lineNum int) string {
	if d.Source == "" {
		return ""
	}
	lines := strings.Split(d.Source, "\n")
	if lineNum < 1 || lineNum > len(lines) {
		return ""
	}
	return lines[lineNum-1]
}

// List is an ordered batch of diagnostics produced by a single eval attempt.
type List []*Diagnostic

// HasErrors reports whether any diagnostic in the list is severity error.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Format renders every diagnostic in the list, numbered when there is more
// than one.
func (l List) Format(color bool) string {
	if len(l) == 0 {
		return ""
	}
	if len(l) == 1 {
		return l[0].Format(color)
	}
	var sb strings.Builder
	for i, d := range l {
		sb.WriteString(fmt.Sprintf("[%d of %d]\n", i+1, len(l)))
		sb.WriteString(d.Format(color))
		if i < len(l)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
