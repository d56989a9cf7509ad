package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/clauderelay/clauderelay/internal/claude"
)

// StubCLI is a scripted claude.Invoker. Tests queue outcomes; each
// Invoke consumes one. With an empty queue it echoes the prompt under
// a generated session id, so happy-path tests need no scripting.
type StubCLI struct {
	mu      sync.Mutex
	queue   []stubOutcome
	calls   []claude.Request
	counter int
}

type stubOutcome struct {
	sessionID string
	output    string
	err       error
}

// NewStubCLI creates a StubCLI.
func NewStubCLI() *StubCLI {
	return &StubCLI{}
}

// QueueSuccess scripts one successful invocation.
func (s *StubCLI) QueueSuccess(sessionID, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, stubOutcome{sessionID: sessionID, output: output})
}

// QueueFailure scripts one failed invocation.
func (s *StubCLI) QueueFailure(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, stubOutcome{err: errors.New(message)})
}

// Calls returns a copy of all requests seen so far.
func (s *StubCLI) Calls() []claude.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]claude.Request(nil), s.calls...)
}

// Reset drops the queue and call history.
func (s *StubCLI) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.calls = nil
}

// Invoke implements claude.Invoker.
func (s *StubCLI) Invoke(_ context.Context, req claude.Request, onEvent func(claude.StreamEvent)) (*claude.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)

	var outcome stubOutcome
	if len(s.queue) > 0 {
		outcome = s.queue[0]
		s.queue = s.queue[1:]
	} else {
		s.counter++
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = fmt.Sprintf("stub-session-%d", s.counter)
		}
		outcome = stubOutcome{sessionID: sessionID, output: "echo: " + req.Prompt}
	}
	s.mu.Unlock()

	if outcome.err != nil {
		return nil, outcome.err
	}

	if onEvent != nil {
		init := claude.StreamEvent{Type: "system", Subtype: "init", SessionID: outcome.sessionID}
		init.Raw = mustMarshal(init)
		onEvent(init)

		result := claude.StreamEvent{Type: "result", SessionID: outcome.sessionID, Result: outcome.output}
		result.Raw = mustMarshal(result)
		onEvent(result)
	}

	return &claude.Result{SessionID: outcome.sessionID, Output: outcome.output}, nil
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
