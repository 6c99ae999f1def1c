// Package supervisor spawns and restarts the isolated execution child,
// frames the command/response protocol over its stdin/stdout, and fans the
// child's stdout/stderr through to the caller as typed events.
//
// Shape follows a stdio JSON-RPC transport: request/response multiplexing
// keyed by request ID over a bufio.Scanner-fed stdout, exec.Cmd with
// explicit pipes, a pending-request dispatch table, a WaitGroup-joined
// reader-goroutine pair.
package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/orbit-lang/evalcore/internal/evallog"
	"github.com/orbit-lang/evalcore/internal/protocol"
)

// OutputEvent is one line of the child's plain stdout/stderr output, or a
// typed display artifact extracted from a sentinel-bracketed block.
type OutputEvent struct {
	Stream  string // "stdout" or "stderr"
	Text    string
	Display *DisplayArtifact
}

// DisplayArtifact is a MIME-typed block the child printed between
// EVCXR_BEGIN_CONTENT/EVCXR_END_CONTENT sentinel lines.
type DisplayArtifact struct {
	MimeType string
	Body     string
}

// Supervisor owns one child process and the framed protocol spoken over its
// stdio.
type Supervisor struct {
	mu        sync.Mutex
	childPath string
	childArgs []string
	logger    *evallog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	pending   map[string]chan *protocol.Response
	pendingMu sync.Mutex

	events chan OutputEvent
	done   chan struct{}
	dead   chan struct{} // closed once waitChild has reaped the process
	wg     sync.WaitGroup
	alive  bool
}

// New constructs a Supervisor that will spawn childPath (the
// evalcore-child binary) with childArgs on EnsureAlive.
func New(childPath string, childArgs []string, logger *evallog.Logger) *Supervisor {
	return &Supervisor{
		childPath: childPath,
		childArgs: childArgs,
		logger:    logger,
		pending:   make(map[string]chan *protocol.Response),
		events:    make(chan OutputEvent, 64),
	}
}

// Events returns the channel of stdout/stderr/display events for the
// current (or next) child lifetime.
func (s *Supervisor) Events() <-chan OutputEvent { return s.events }

// EnsureAlive spawns the child if it is not already running.
func (s *Supervisor) EnsureAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive {
		return nil
	}
	return s.spawnLocked()
}

func (s *Supervisor) spawnLocked() error {
	cmd := exec.Command(s.childPath, s.childArgs...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("supervisor: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("supervisor: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: start child: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.stderr = stderr
	s.done = make(chan struct{})
	s.dead = make(chan struct{})
	s.alive = true

	s.wg.Add(2)
	go s.readStdout(s.stdout, s.done)
	go s.readStderr(s.stderr, s.done)
	go s.waitChild(cmd, s.dead)
	return nil
}

// waitChild blocks on the process's exit, the only reliable signal that it
// crashed on its own (segfault, abort, uncaught signal) rather than handled a
// command and kept running. It reaps the process exactly once per spawn, so
// Kill must never call cmd.Wait itself.
func (s *Supervisor) waitChild(cmd *exec.Cmd, dead chan struct{}) {
	waitErr := cmd.Wait()
	status, signal, message := classifyExit(waitErr)

	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()

	s.failPendingWithStatus(status, signal, message)
	close(dead)
}

// classifyExit turns a Wait error into a protocol-level status. ExitCode()
// returning -1 is the portable signal-termination indicator; the actual
// signal number is best-effort and platform-dependent.
func classifyExit(err error) (protocol.ResponseStatus, int, string) {
	if err == nil {
		return protocol.StatusNonzeroExit, 0, "child exited"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == -1 {
			signal := extractSignal(exitErr)
			return protocol.StatusSignal, signal, fmt.Sprintf("child terminated by signal %d", signal)
		}
		return protocol.StatusNonzeroExit, 0, fmt.Sprintf("child exited with status %d", exitErr.ExitCode())
	}
	return protocol.StatusNonzeroExit, 0, err.Error()
}

// readStdout multiplexes framed JSON responses (one per pending request) and
// plain display-bracketed output lines.
func (s *Supervisor) readStdout(r io.Reader, done chan struct{}) {
	defer s.wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var inDisplay bool
	var mimeType string
	var body strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, protocol.DisplayBeginPrefix) {
			inDisplay = true
			mimeType = strings.TrimPrefix(line, protocol.DisplayBeginPrefix)
			body.Reset()
			continue
		}
		if inDisplay {
			if line == protocol.DisplayEnd {
				inDisplay = false
				s.emit(OutputEvent{Stream: "stdout", Display: &DisplayArtifact{MimeType: mimeType, Body: body.String()}})
				continue
			}
			if body.Len() > 0 {
				body.WriteByte('\n')
			}
			body.WriteString(line)
			continue
		}

		var resp protocol.Response
		if json.Unmarshal([]byte(line), &resp) == nil && resp.RequestID != "" {
			s.dispatch(&resp)
			continue
		}

		if strings.HasPrefix(line, protocol.BeginMarkerPrefix) || strings.HasPrefix(line, protocol.EndMarkerPrefix) {
			continue
		}

		s.emit(OutputEvent{Stream: "stdout", Text: line})
	}
	s.failPending(errors.New("child stdout closed"))
}

func (s *Supervisor) readStderr(r io.Reader, done chan struct{}) {
	defer s.wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		s.emit(OutputEvent{Stream: "stderr", Text: scanner.Text()})
	}
}

func (s *Supervisor) emit(e OutputEvent) {
	select {
	case s.events <- e:
	default:
		if s.logger != nil {
			s.logger.Warn(evallog.CategorySupervisor, "dropped output event, channel full")
		}
	}
}

func (s *Supervisor) dispatch(resp *protocol.Response) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.RequestID]
	if ok {
		delete(s.pending, resp.RequestID)
	}
	s.pendingMu.Unlock()
	if ok {
		ch <- resp
	}
}

func (s *Supervisor) failPending(err error) {
	s.failPendingWithStatus(protocol.StatusNonzeroExit, 0, err.Error())
}

func (s *Supervisor) failPendingWithStatus(status protocol.ResponseStatus, signal int, message string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, ch := range s.pending {
		ch <- &protocol.Response{RequestID: id, Status: status, Signal: signal, Message: message}
		delete(s.pending, id)
	}
}

// Call sends cmd and blocks for its matching response, a cancellation, or
// the child's death.
func (s *Supervisor) Call(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return nil, errors.New("supervisor: child not running")
	}
	stdin := s.stdin
	s.mu.Unlock()

	ch := make(chan *protocol.Response, 1)
	s.pendingMu.Lock()
	s.pending[cmd.RequestID] = ch
	s.pendingMu.Unlock()

	encoded, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("supervisor: marshal command: %w", err)
	}
	if _, err := stdin.Write(append(encoded, '\n')); err != nil {
		return nil, fmt.Errorf("supervisor: write command: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Load sends a LOAD command for the given artifact/symbol pair — this is
// evaluation: there is no separate EVAL command.
func (s *Supervisor) Load(ctx context.Context, evalID, artifactPath, symbol string) (*protocol.Response, error) {
	return s.Call(ctx, protocol.Command{
		Kind:         protocol.CommandLoad,
		EvalID:       evalID,
		ArtifactPath: artifactPath,
		Symbol:       symbol,
	})
}

// Vars requests the child's current store keys and types.
func (s *Supervisor) Vars(ctx context.Context) (*protocol.Response, error) {
	return s.Call(ctx, protocol.Command{Kind: protocol.CommandVars})
}

// Kill force-terminates the child and marks it dead; the next EnsureAlive
// respawns it. It does not call cmd.Wait itself — waitChild already owns
// that and will observe the kill as a signal exit.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	proc := s.cmd.Process
	dead := s.dead
	stdin := s.stdin
	s.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
	<-dead
	_ = stdin.Close()
}

// IsAlive reports whether the child process is currently running.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}
