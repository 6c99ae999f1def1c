package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/orbit-lang/evalcore/internal/dynload"
	"github.com/orbit-lang/evalcore/internal/protocol"
	"github.com/orbit-lang/evalcore/internal/store"
)

func TestVarEntriesReflectsStoreContents(t *testing.T) {
	s := store.New()
	s.Put("x", 40, "i32")
	s.Put("name", "hl", "String")

	entries := varEntries(s)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	seen := map[string]string{}
	for _, e := range entries {
		seen[e.Name] = e.Type
	}
	if seen["x"] != "i32" || seen["name"] != "String" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestWriteResponseEmitsOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	writeResponse(w, protocol.Response{RequestID: "r1", Status: protocol.StatusOK})

	line := buf.String()
	if line == "" || line[len(line)-1] != '\n' {
		t.Fatalf("expected a newline-terminated line, got %q", line)
	}
	var resp protocol.Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("response did not round-trip as JSON: %v", err)
	}
	if resp.RequestID != "r1" || resp.Status != protocol.StatusOK {
		t.Fatalf("unexpected decoded response: %+v", resp)
	}
}

func TestHandleLoadReportsNonzeroExitForMissingArtifact(t *testing.T) {
	s := store.New()
	var loaded *dynload.Library

	resp := handleLoad(s, &loaded, protocol.Command{
		RequestID:    "r2",
		ArtifactPath: filepath.Join(t.TempDir(), "missing.so"),
		Symbol:       "eval_entry",
	})
	if resp.Status != protocol.StatusNonzeroExit {
		t.Fatalf("expected StatusNonzeroExit for a missing artifact, got %v (%s)", resp.Status, resp.Message)
	}
	if resp.RequestID != "r2" {
		t.Fatalf("expected request id to be echoed back, got %q", resp.RequestID)
	}
}
