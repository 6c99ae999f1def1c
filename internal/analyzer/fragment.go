package analyzer

import (
	"strings"

	"github.com/orbit-lang/evalcore/internal/evalerr"
)

// Kind tags which shape a Fragment took.
type Kind int

const (
	KindItems Kind = iota
	KindStatements
	KindTrailingExpression
	KindDirective
	KindMixed
)

// ItemDef is one top-level item definition (fn, struct, enum, trait, impl,
// use, mod, static/const) captured verbatim.
type ItemDef struct {
	Name   string // best-effort; empty when not determinable (e.g. bare impl)
	Kind   string // "fn", "struct", "enum", "trait", "impl", "use", "mod", "static", "const"; "pub" when the item starts with `pub`
	Source string
}

// BindingShape describes one new local variable introduced by a statement.
type BindingShape struct {
	Name          string
	DeclaredType  string // empty when not explicitly annotated
	NeedsTypeInfo bool   // true when the toolchain will need to infer and report a type back
	Mutable       bool
	References    []string // names referenced on the right-hand side, for move analysis
}

// Statement is one top-level binding or expression-statement.
type Statement struct {
	Source  string
	Binding *BindingShape // nil for a bare expression-statement
}

// TrailingExpression is the final, unterminated expression of a fragment,
// whose value is displayed to the user.
type TrailingExpression struct {
	Source       string
	ExplicitType string
}

// DirectiveCall is one parsed `:name argv...` line, handed to the directive
// handler before the remainder of the fragment is analyzed.
type DirectiveCall struct {
	Name string
	Argv string
}

// Fragment is the structural classification of one user submission.
type Fragment struct {
	Kind       Kind
	Items      []ItemDef
	Statements []Statement
	Trailing   *TrailingExpression
	Directives []DirectiveCall
	Attributes []string // accumulated `#![...]` crate attributes
}

// DefaultDirectivePrefix is the reserved leading character identifying a
// directive line.
const DefaultDirectivePrefix = ':'

// Classify analyzes src and returns its structural Fragment. It never
// panics: malformed input is reported as a *ParseError, and unbalanced
// delimiters are reported as *IncompleteError so a front-end can prompt for
// more input rather than treating the submission as rejected.
func Classify(src string, directivePrefix rune) (*Fragment, error) {
	if directivePrefix == 0 {
		directivePrefix = DefaultDirectivePrefix
	}

	if err := checkBalance(src); err != nil {
		return nil, err
	}

	frag := &Fragment{}
	var codeLines []string

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if rune(trimmed[0]) == directivePrefix {
			name, argv, _ := strings.Cut(strings.TrimPrefix(trimmed, string(directivePrefix)), " ")
			frag.Directives = append(frag.Directives, DirectiveCall{
				Name: strings.TrimSpace(name),
				Argv: strings.TrimSpace(argv),
			})
			continue
		}
		codeLines = append(codeLines, line)
	}

	code := strings.TrimSpace(strings.Join(codeLines, "\n"))
	if code == "" {
		if len(frag.Directives) == 0 {
			return nil, &evalerr.ParseError{Message: "empty fragment"}
		}
		frag.Kind = KindDirective
		return frag, nil
	}

	chunks, err := splitTopLevel(code)
	if err != nil {
		return nil, err
	}

	var hasItems, hasStatements bool
	for i, chunk := range chunks {
		text := strings.TrimSpace(chunk)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#![") {
			frag.Attributes = append(frag.Attributes, text)
			continue
		}

		l := New(text)
		first := l.NextToken()

		isLast := i == len(chunks)-1
		endsWithSemicolon := strings.HasSuffix(text, ";")

		switch {
		case IsItemKeyword(first.Type):
			frag.Items = append(frag.Items, ItemDef{
				Name:   extractItemName(text, first.Type),
				Kind:   itemKindName(first.Type),
				Source: text,
			})
			hasItems = true
		case first.Type == LET:
			frag.Statements = append(frag.Statements, Statement{
				Source:  text,
				Binding: analyzeBinding(text),
			})
			hasStatements = true
		case !endsWithSemicolon && isLast:
			frag.Trailing = &TrailingExpression{Source: text}
		default:
			if !endsWithSemicolon {
				return nil, &evalerr.ParseError{Message: "bare assignment to an undeclared name is not allowed; use `let`"}
			}
			frag.Statements = append(frag.Statements, Statement{Source: text})
			hasStatements = true
		}
	}

	switch {
	case frag.Trailing != nil && !hasItems && !hasStatements && len(frag.Directives) == 0:
		frag.Kind = KindTrailingExpression
	case hasItems && !hasStatements && frag.Trailing == nil && len(frag.Directives) == 0:
		frag.Kind = KindItems
	case hasStatements && !hasItems && frag.Trailing == nil && len(frag.Directives) == 0:
		frag.Kind = KindStatements
	default:
		frag.Kind = KindMixed
	}
	return frag, nil
}

func itemKindName(t TokenType) string {
	switch t {
	case FN:
		return "fn"
	case STRUCT:
		return "struct"
	case ENUM:
		return "enum"
	case TRAIT:
		return "trait"
	case IMPL:
		return "impl"
	case USE:
		return "use"
	case MOD:
		return "mod"
	case STATIC:
		return "static"
	case CONST:
		return "const"
	case PUB:
		return "pub"
	default:
		return "item"
	}
}

// extractItemName does a best-effort scan for the identifier following the
// leading item keyword (skipping a `pub` modifier), e.g. `fn sq(` -> "sq".
func extractItemName(text string, first TokenType) string {
	l := New(text)
	tok := l.NextToken()
	if tok.Type == PUB {
		tok = l.NextToken()
	}
	if !IsItemKeyword(tok.Type) {
		return ""
	}
	name := l.NextToken()
	if name.Type == IDENT {
		return name.Literal
	}
	return ""
}

func analyzeBinding(stmt string) *BindingShape {
	l := New(stmt)
	tok := l.NextToken() // `let`
	_ = tok

	mutable := false
	next := l.NextToken()
	if next.Type == MUT {
		mutable = true
		next = l.NextToken()
	}
	if next.Type != IDENT {
		return nil
	}
	shape := &BindingShape{Name: next.Literal, Mutable: mutable}

	t := l.NextToken()
	if t.Type == COLON {
		var typeBuilder strings.Builder
		for {
			tt := l.NextToken()
			if tt.Type == ASSIGN || tt.Type == EOF || tt.Type == SEMICOLON {
				t = tt
				break
			}
			if typeBuilder.Len() > 0 {
				typeBuilder.WriteByte(' ')
			}
			typeBuilder.WriteString(tt.Literal)
		}
		shape.DeclaredType = typeBuilder.String()
	} else {
		shape.NeedsTypeInfo = true
	}

	if t.Type == ASSIGN {
		var refs []string
		for {
			rt := l.NextToken()
			if rt.Type == EOF || rt.Type == SEMICOLON {
				break
			}
			if rt.Type == IDENT {
				refs = append(refs, rt.Literal)
			}
		}
		shape.References = refs
	}
	return shape
}

// ReferencedIdents does a best-effort lexical scan of arbitrary source text
// and returns every identifier token in it, in order (duplicates included).
// It is used for panic-retention analysis on statements that aren't `let`
// bindings (BindingShape.References only covers a binding's right-hand
// side) and on trailing expressions.
func ReferencedIdents(source string) []string {
	l := New(source)
	var out []string
	for {
		tok := l.NextToken()
		if tok.Type == EOF {
			break
		}
		if tok.Type == IDENT {
			out = append(out, tok.Literal)
		}
	}
	return out
}

// splitTopLevel splits code into top-level chunks (items end at their
// closing brace; statements end at `;`; a final chunk with no terminator is
// the trailing expression), respecting nested braces/parens/brackets and
// string/char literals.
func splitTopLevel(code string) ([]string, error) {
	var chunks []string
	depth := 0
	start := 0
	l := New(code, WithTraceTokens(true))
	for {
		tok := l.NextToken()
		if tok.Type == EOF {
			break
		}
		switch tok.Type {
		case LBRACE, LPAREN, LBRACKET:
			depth++
		case RBRACE, RPAREN, RBRACKET:
			depth--
			if depth == 0 && isBlockTerminator(tok) {
				end := tok.Pos.Offset + len(tok.Literal)
				chunks = append(chunks, code[start:end])
				start = end
			}
		case SEMICOLON:
			if depth == 0 {
				end := tok.Pos.Offset + len(tok.Literal)
				chunks = append(chunks, code[start:end])
				start = end
			}
		}
	}
	if rest := strings.TrimSpace(code[start:]); rest != "" {
		chunks = append(chunks, code[start:])
	}
	return chunks, nil
}

// isBlockTerminator reports whether a closing brace at depth 0 ends a
// top-level item (as opposed to, say, closing a struct-literal expression
// chunk that still needs a trailing `;` or is itself the trailing
// expression). Items always end their chunk at `}`.
func isBlockTerminator(tok Token) bool {
	return tok.Type == RBRACE
}

func checkBalance(src string) error {
	type opener struct {
		r   rune
		pos Position
	}
	var stack []opener
	inString := false
	inChar := false
	escaped := false
	line, col := 1, 0

	for _, r := range src {
		col++
		if r == '\n' {
			line++
			col = 0
		}
		if escaped {
			escaped = false
			continue
		}
		if inString {
			if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
			continue
		}
		if inChar {
			if r == '\\' {
				escaped = true
			} else if r == '\'' {
				inChar = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '\'':
			inChar = true
		case '{', '(', '[':
			stack = append(stack, opener{r, Position{Line: line, Column: col}})
		case '}', ')', ']':
			if len(stack) == 0 {
				return &evalerr.ParseError{Message: "unmatched closing delimiter"}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if inString || inChar || len(stack) > 0 {
		return &evalerr.IncompleteError{Reason: "unbalanced delimiters or unterminated literal"}
	}
	return nil
}
