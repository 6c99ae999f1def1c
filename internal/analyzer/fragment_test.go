package analyzer

import (
	"testing"

	"github.com/orbit-lang/evalcore/internal/evalerr"
)

func TestClassifyTrailingExpression(t *testing.T) {
	frag, err := Classify("x + y", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frag.Kind != KindTrailingExpression {
		t.Fatalf("expected KindTrailingExpression, got %v", frag.Kind)
	}
	if frag.Trailing == nil || frag.Trailing.Source != "x + y" {
		t.Fatalf("unexpected trailing expression: %+v", frag.Trailing)
	}
}

func TestClassifyLetStatement(t *testing.T) {
	frag, err := Classify("let x: i32 = 40;", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frag.Kind != KindStatements {
		t.Fatalf("expected KindStatements, got %v", frag.Kind)
	}
	if len(frag.Statements) != 1 || frag.Statements[0].Binding == nil {
		t.Fatalf("expected one binding statement, got %+v", frag.Statements)
	}
	b := frag.Statements[0].Binding
	if b.Name != "x" || b.DeclaredType != "i32" {
		t.Fatalf("unexpected binding shape: %+v", b)
	}
}

func TestClassifyLetWithoutTypeNeedsInfo(t *testing.T) {
	frag, err := Classify("let y = 2;", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := frag.Statements[0].Binding
	if !b.NeedsTypeInfo {
		t.Fatal("expected NeedsTypeInfo when no annotation given")
	}
}

func TestClassifyItem(t *testing.T) {
	frag, err := Classify("fn sq(n: i32) -> i32 { n * n }", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frag.Kind != KindItems {
		t.Fatalf("expected KindItems, got %v", frag.Kind)
	}
	if len(frag.Items) != 1 || frag.Items[0].Name != "sq" {
		t.Fatalf("unexpected items: %+v", frag.Items)
	}
}

func TestClassifyDirective(t *testing.T) {
	frag, err := Classify(":dep serde = \"1.0\"", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frag.Kind != KindDirective {
		t.Fatalf("expected KindDirective, got %v", frag.Kind)
	}
	if len(frag.Directives) != 1 || frag.Directives[0].Name != "dep" {
		t.Fatalf("unexpected directives: %+v", frag.Directives)
	}
}

func TestClassifyUnbalancedBracesIsIncomplete(t *testing.T) {
	_, err := Classify("fn sq(n: i32) -> i32 { n * n", 0)
	if err == nil {
		t.Fatal("expected an error for unbalanced braces")
	}
	if _, ok := err.(*evalerr.IncompleteError); !ok {
		t.Fatalf("expected *evalerr.IncompleteError, got %T", err)
	}
}

func TestClassifyBareAssignmentRejected(t *testing.T) {
	_, err := Classify("x = 1;", 0)
	if err == nil {
		t.Fatal("expected an error for bare assignment to undeclared name")
	}
	if _, ok := err.(*evalerr.ParseError); !ok {
		t.Fatalf("expected *evalerr.ParseError, got %T", err)
	}
}

func TestClassifyMixedFragment(t *testing.T) {
	frag, err := Classify("let a = 1;\nfn f() { a }", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frag.Kind != KindMixed {
		t.Fatalf("expected KindMixed, got %v", frag.Kind)
	}
}
