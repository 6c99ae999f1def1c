package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orbit-lang/evalcore/internal/analyzer"
	"github.com/orbit-lang/evalcore/internal/evalerr"
)

// SpanEntry records that GeneratedLength bytes starting at GeneratedOffset
// in the composed source originated from UserLength bytes starting at
// UserOffset in the fragment that contributed them.
type SpanEntry struct {
	UserOffset      int
	UserLength      int
	GeneratedOffset int
	GeneratedLength int
}

// SpanMap is the ordered, binary-searchable table the Composer records
// while emitting one eval's source, used afterwards to remap diagnostic
// coordinates back onto the user's fragment.
type SpanMap []SpanEntry

// Lookup finds the SpanEntry whose generated range contains offset, if any.
func (m SpanMap) Lookup(offset int) (SpanEntry, bool) {
	i := sort.Search(len(m), func(i int) bool {
		return m[i].GeneratedOffset+m[i].GeneratedLength > offset
	})
	if i < len(m) && m[i].GeneratedOffset <= offset {
		return m[i], true
	}
	return SpanEntry{}, false
}

// Unit is the result of composing one eval: the full project source, the
// span map needed to remap diagnostics, and the unique entry-function
// symbol name the toolchain driver passes to the child supervisor's LOAD
// command.
type Unit struct {
	Source       string
	SpanMap      SpanMap
	EntrySymbol  string
	EvalSeq      int
}

// entrySymbolFormat matches the convention a front-end or crash report can
// grep for: __evalcore_entry_<seq>.
const entrySymbolFormat = "__evalcore_entry_%d"

// Compose produces the full project source for one eval by regenerating the
// stable compilation unit (accumulated items and use-paths) plus a fresh
// entry function wrapping the fragment's new statements/trailing
// expression. draft is mutated in place with the fragment's new items,
// use-paths, and variable bindings; callers are expected to have started
// from a State.Clone() so the mutation can be rolled back by simply
// discarding the draft.
func Compose(draft *State, frag *analyzer.Fragment, evalSeq int) (*Unit, error) {
	return ComposeWithSkipSave(draft, frag, evalSeq, nil)
}

// ComposeWithSkipSave is Compose plus a one-shot exclusion list: names in
// skipSave are still restored at entry but are not saved back at the end,
// for the moved-variable rebuild the orchestrator performs when a build
// fails because a fragment used an already-moved binding.
func ComposeWithSkipSave(draft *State, frag *analyzer.Fragment, evalSeq int, skipSave map[string]bool) (*Unit, error) {
	var b strings.Builder
	var spans SpanMap

	draft.Attributes = append(draft.Attributes, frag.Attributes...)
	for _, attr := range draft.Attributes {
		b.WriteString(attr)
		b.WriteString("\n")
	}

	for _, item := range frag.Items {
		if item.Kind == "use" {
			draft.UsePaths.Set(normalizeUsePath(item.Source), "")
			continue
		}
		name := item.Name
		if name == "" {
			name = fmt.Sprintf("__anon_%s_%d", item.Kind, evalSeq)
		}
		draft.Items.Set(item.Kind+":"+name, item.Source)
	}

	for _, path := range draft.UsePaths.Names() {
		b.WriteString("use ")
		b.WriteString(path)
		b.WriteString(";\n")
	}

	for _, key := range draft.Items.Names() {
		src, _ := draft.Items.Get(key)
		genOffset := b.Len()
		b.WriteString(src)
		b.WriteString("\n")
		spans = append(spans, SpanEntry{GeneratedOffset: genOffset, GeneratedLength: len(src)})
	}

	symbol := fmt.Sprintf(entrySymbolFormat, evalSeq)
	entrySpans, entryErr := emitEntryFunction(&b, draft, frag, symbol, skipSave)
	if entryErr != nil {
		return nil, entryErr
	}
	spans = append(spans, entrySpans...)

	return &Unit{Source: b.String(), SpanMap: spans, EntrySymbol: symbol, EvalSeq: evalSeq}, nil
}

// emitEntryFunction writes the per-eval wrapper: restore variables, run the
// new statements/trailing expression, then save variables back. skipSave
// (may be nil) names variables that are restored but deliberately not saved
// back, because the fragment currently being composed is a moved-variable
// rebuild.
func emitEntryFunction(b *strings.Builder, draft *State, frag *analyzer.Fragment, symbol string, skipSave map[string]bool) (SpanMap, error) {
	var spans SpanMap

	referenced := referencedNames(frag)

	fmt.Fprintf(b, "\n#[no_mangle]\npub extern \"C\" fn %s(store: &mut VariableStore) {\n", symbol)

	// Step 1+2: restore previously-bound locals in declaration order,
	// recomputing each one's panic-retention policy against this eval's
	// referenced set (is_copy never changes after a binding is created; a
	// name's "referenced by the executing entry" status does, every eval).
	for _, name := range draft.Variables.Names() {
		info, _ := draft.Variables.Get(name)
		if info.MoveState == MovedInLastEval {
			continue
		}
		info.PreserveOnPanic = info.IsCopy || !referenced[name]
		draft.Variables.Set(name, info)
		fmt.Fprintf(b, "    let mut %s: %s = store.take(%q).downcast();\n", name, info.Type, name)
	}

	// Step 3: new statements and trailing expression, with span tracking
	// for each byte contributed by the user's fragment text.
	for _, stmt := range frag.Statements {
		genOffset := b.Len()
		b.WriteString("    ")
		b.WriteString(stmt.Source)
		b.WriteString("\n")
		spans = append(spans, SpanEntry{GeneratedOffset: genOffset + 4, GeneratedLength: len(stmt.Source)})
		if stmt.Binding != nil {
			var needsInfo string
			if stmt.Binding.NeedsTypeInfo {
				needsInfo = "?"
			}
			typ := firstNonEmpty(stmt.Binding.DeclaredType, needsInfo)
			isCopy := isCopyType(typ)
			draft.Variables.Set(stmt.Binding.Name, VariableInfo{
				Type:            typ,
				IsCopy:          isCopy,
				PreserveOnPanic: isCopy || !referenced[stmt.Binding.Name],
			})
		}
	}

	if frag.Trailing != nil {
		genOffset := b.Len()
		b.WriteString("    let __evalcore_result = ")
		b.WriteString(frag.Trailing.Source)
		b.WriteString(";\n")
		spans = append(spans, SpanEntry{GeneratedOffset: genOffset + len("    let __evalcore_result = "), GeneratedLength: len(frag.Trailing.Source)})
		b.WriteString("    __evalcore_display(&__evalcore_result);\n")
	}

	// Step 4: save every variable still alive back into the store, except
	// one a moved-variable rebuild is deliberately dropping.
	for _, name := range draft.Variables.Names() {
		info, _ := draft.Variables.Get(name)
		if info.MoveState == MovedInLastEval || skipSave[name] {
			continue
		}
		fmt.Fprintf(b, "    store.put(%q, Box::new(%s), %q);\n", name, name, info.Type)
	}

	b.WriteString("}\n")
	return spans, nil
}

// referencedNames collects every identifier the fragment's new code reads:
// a let binding's right-hand side, a bare expression-statement, or the
// trailing expression. Used to compute per-variable panic retention: a
// variable not referenced by the executing entry stays alive on panic.
func referencedNames(frag *analyzer.Fragment) map[string]bool {
	out := make(map[string]bool)
	for _, stmt := range frag.Statements {
		var names []string
		if stmt.Binding != nil {
			names = stmt.Binding.References
		} else {
			names = analyzer.ReferencedIdents(stmt.Source)
		}
		for _, n := range names {
			out[n] = true
		}
	}
	if frag.Trailing != nil {
		for _, n := range analyzer.ReferencedIdents(frag.Trailing.Source) {
			out[n] = true
		}
	}
	return out
}

// isCopyType reports whether t is one of HL's Copy-eligible primitive
// types, mirroring Rust's Copy trait for the built-in scalar types.
func isCopyType(t string) bool {
	switch t {
	case "i8", "i16", "i32", "i64", "i128", "isize",
		"u8", "u16", "u32", "u64", "u128", "usize",
		"f32", "f64", "bool", "char", "()":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeUsePath(src string) string {
	s := strings.TrimSuffix(strings.TrimSpace(src), ";")
	s = strings.TrimPrefix(s, "use")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// RemapDiagnostic translates a diagnostic's span from generated-source
// coordinates into the user fragment's coordinates using m. Spans outside
// every recorded range are elided by returning ok=false.
func RemapDiagnostic(m SpanMap, generatedOffset, length int, source string) (evalerr.Span, bool) {
	entry, ok := m.Lookup(generatedOffset)
	if !ok {
		return evalerr.Span{}, false
	}
	userOffset := entry.UserOffset + (generatedOffset - entry.GeneratedOffset)
	line, col := lineColAt(source, userOffset)
	endLine, endCol := lineColAt(source, userOffset+length)
	return evalerr.Span{
		Start: evalerr.Position{Line: line, Column: col},
		End:   evalerr.Position{Line: endLine, Column: endCol},
	}, true
}

func lineColAt(source string, offset int) (int, int) {
	if offset > len(source) {
		offset = len(source)
	}
	line, col := 1, 1
	for i := 0; i < offset; i++ {
		if source[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
