package analyzer

import "testing"

func TestLexerBasicTokens(t *testing.T) {
	tests := []struct {
		input string
		want  []TokenType
	}{
		{"let x = 1;", []TokenType{LET, IDENT, ASSIGN, INT, SEMICOLON, EOF}},
		{"fn sq(n: i32) -> i32 { n * n }", []TokenType{
			FN, IDENT, LPAREN, IDENT, COLON, IDENT, RPAREN, ARROW, IDENT,
			LBRACE, IDENT, STAR, IDENT, RBRACE, EOF,
		}},
		{"a::b", []TokenType{IDENT, COLONCOLON, IDENT, EOF}},
		{"x == y && z != w", []TokenType{IDENT, EQ, IDENT, AMPAMP, IDENT, NE, IDENT, EOF}},
	}

	for _, tt := range tests {
		l := New(tt.input)
		for i, want := range tt.want {
			tok := l.NextToken()
			if tok.Type != want {
				t.Fatalf("input %q: token %d: got %v, want %v", tt.input, i, tok.Type, want)
			}
		}
	}
}

func TestLexerStringAndChar(t *testing.T) {
	l := New(`let s = "hi\"there"; let c = 'x';`)
	want := []TokenType{LET, IDENT, ASSIGN, STRING, SEMICOLON, LET, IDENT, ASSIGN, CHAR, SEMICOLON, EOF}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w {
			t.Fatalf("token %d: got %v, want %v", i, tok.Type, w)
		}
	}
}

func TestLexerStripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFlet x = 1;"
	l := New(input)
	tok := l.NextToken()
	if tok.Type != LET {
		t.Fatalf("expected LET as first token after BOM strip, got %v", tok.Type)
	}
	if tok.Pos.Offset != 0 {
		t.Fatalf("expected offset 0 after BOM strip, got %d", tok.Pos.Offset)
	}
}

func TestLexerPositionTracking(t *testing.T) {
	l := New("let x\n= 1;")
	_ = l.NextToken() // let
	x := l.NextToken()
	if x.Pos.Line != 1 {
		t.Fatalf("expected x on line 1, got %d", x.Pos.Line)
	}
	assign := l.NextToken()
	if assign.Pos.Line != 2 {
		t.Fatalf("expected = on line 2, got %d", assign.Pos.Line)
	}
}

func TestWithTraceTokensRecordsEveryToken(t *testing.T) {
	l := New("let x = 1;", WithTraceTokens(true))
	for {
		tok := l.NextToken()
		if tok.Type == EOF {
			break
		}
	}
	if len(l.Trace()) == 0 {
		t.Fatal("expected trace to record tokens")
	}
}

func TestLexerUnterminatedStringIsError(t *testing.T) {
	l := New(`"unterminated`)
	tok := l.NextToken()
	if tok.Type != ILLEGAL {
		t.Fatalf("expected ILLEGAL for unterminated string, got %v", tok.Type)
	}
	if len(l.Errors()) == 0 {
		t.Fatal("expected a lex error for unterminated string")
	}
}
