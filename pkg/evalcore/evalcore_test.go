package evalcore

import (
	"context"
	"errors"
	"testing"
)

func newTestContext(t *testing.T) *EvalContext {
	t.Helper()
	ctx, err := New(Config{ChildPath: "evalcore-child", Workdir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func TestCompleteWithoutAnalyzerReturnsSentinelError(t *testing.T) {
	ctx := newTestContext(t)

	_, err := ctx.Complete(context.Background(), "x.", 2)
	if !errors.Is(err, ErrCompletionUnavailable) {
		t.Fatalf("expected ErrCompletionUnavailable, got %v", err)
	}
}

type stubAnalyzer struct{ calls int }

func (s *stubAnalyzer) Complete(ctx context.Context, fragment string, cursor int) ([]Completion, error) {
	s.calls++
	return []Completion{{Replacement: "len", RangeStart: cursor, RangeEnd: cursor, Kind: "method"}}, nil
}

func TestCompleteDelegatesToConfiguredAnalyzer(t *testing.T) {
	analyzer := &stubAnalyzer{}
	ctx, err := New(Config{ChildPath: "evalcore-child", Workdir: t.TempDir(), Analyzer: analyzer})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctx.Close()

	completions, err := ctx.Complete(context.Background(), "v.", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(completions) != 1 || completions[0].Replacement != "len" {
		t.Fatalf("unexpected completions: %+v", completions)
	}
	if analyzer.calls != 1 {
		t.Fatalf("expected the stub analyzer to be invoked once, got %d", analyzer.calls)
	}
}

func TestSetOptionAppliesDirective(t *testing.T) {
	ctx := newTestContext(t)

	if err := ctx.SetOption("opt", "2"); err != nil {
		t.Fatalf("SetOption: %v", err)
	}
	snap := ctx.StateSnapshot()
	if snap.Options.OptLevel != 2 {
		t.Fatalf("expected opt level 2, got %d", snap.Options.OptLevel)
	}
}

func TestResetClearsItemsButReturnsNoError(t *testing.T) {
	ctx := newTestContext(t)
	if err := ctx.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap := ctx.StateSnapshot()
	if snap.ItemsCount != 0 {
		t.Fatalf("expected a freshly reset context to have no items, got %d", snap.ItemsCount)
	}
}
