// Command evalcore-child is the isolated execution subprocess: it owns the
// process-wide Variable Store, loads build artifacts on demand, and speaks
// the framed line-delimited command/response protocol over stdin/stdout.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"unsafe"

	"github.com/orbit-lang/evalcore/internal/dynload"
	"github.com/orbit-lang/evalcore/internal/protocol"
	"github.com/orbit-lang/evalcore/internal/store"
)

func main() {
	s := store.New()
	var loaded *dynload.Library

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()

	for reader.Scan() {
		var cmd protocol.Command
		if err := json.Unmarshal(reader.Bytes(), &cmd); err != nil {
			continue
		}

		switch cmd.Kind {
		case protocol.CommandLoad:
			resp := handleLoad(s, &loaded, cmd)
			writeResponse(writer, resp)
		case protocol.CommandVars:
			writeResponse(writer, protocol.Response{
				RequestID: cmd.RequestID,
				Status:    protocol.StatusOK,
				Vars:      varEntries(s),
			})
		case protocol.CommandExit:
			writeResponse(writer, protocol.Response{RequestID: cmd.RequestID, Status: protocol.StatusOK})
			writer.Flush()
			if loaded != nil {
				_ = loaded.Close()
			}
			return
		}
	}
}

// handleLoad opens (or reuses) the artifact, resolves the entry symbol,
// and calls it, recovering a panic into a StatusPanic response rather than
// letting it escape and crash the whole child — that case is reserved for
// genuine process death (segfault/abort/exit), which the parent detects
// via process wait status instead.
func handleLoad(s *store.Store, loaded **dynload.Library, cmd protocol.Command) (resp protocol.Response) {
	resp.RequestID = cmd.RequestID

	defer func() {
		if r := recover(); r != nil {
			resp.Status = protocol.StatusPanic
			resp.Message = fmt.Sprintf("%v", r)
		}
	}()

	if *loaded == nil || (*loaded).Path() != cmd.ArtifactPath {
		lib, err := dynload.Open(cmd.ArtifactPath)
		if err != nil {
			resp.Status = protocol.StatusNonzeroExit
			resp.Message = err.Error()
			return resp
		}
		*loaded = lib
	}

	entry, err := (*loaded).Lookup(cmd.Symbol)
	if err != nil {
		resp.Status = protocol.StatusNonzeroExit
		resp.Message = err.Error()
		return resp
	}

	fmt.Fprintf(os.Stdout, "%s%s\n", protocol.BeginMarkerPrefix, cmd.EvalID)
	entry.Call(unsafe.Pointer(s))
	fmt.Fprintf(os.Stdout, "%s%s\n", protocol.EndMarkerPrefix, cmd.EvalID)

	resp.Status = protocol.StatusOK
	return resp
}

func varEntries(s *store.Store) []protocol.VarEntry {
	keys := s.Keys()
	out := make([]protocol.VarEntry, 0, len(keys))
	for _, k := range keys {
		typ, _ := s.TypeOf(k)
		out = append(out, protocol.VarEntry{Name: k, Type: typ})
	}
	return out
}

func writeResponse(w *bufio.Writer, resp protocol.Response) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return
	}
	w.Write(encoded)
	w.WriteByte('\n')
	w.Flush()
}
