// Package claude invokes the Claude CLI in headless mode and streams
// its newline-delimited JSON output. Only the event envelope (type,
// subtype, session id) is interpreted; payloads pass through opaque.
package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os/exec"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/clauderelay/clauderelay/internal/logging"
)

// scanBufferSize bounds a single output line. Assistant turns can
// carry large tool results in one JSON record.
const scanBufferSize = 10 * 1024 * 1024

// Request describes one CLI invocation.
type Request struct {
	Prompt string
	// SessionID resumes an existing conversation when set.
	SessionID string
	// WorkingDirectory is where the CLI runs. Empty means inherit.
	WorkingDirectory string
	// Model overrides the CLI's default model when set.
	Model string
}

// StreamEvent is one envelope-parsed line of CLI output. Raw holds the
// unmodified JSON for passthrough.
type StreamEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
	Result    string `json:"result,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Result is the outcome of a completed invocation.
type Result struct {
	// SessionID is the id the CLI assigned or resumed.
	SessionID string
	// Output is the final result text.
	Output string
}

// Invoker runs chat turns. The onEvent callback, when non-nil, sees
// every stream event as it arrives; it is called from the invoking
// goroutine.
type Invoker interface {
	Invoke(ctx context.Context, req Request, onEvent func(StreamEvent)) (*Result, error)
}

// Options configures a CLI.
type Options struct {
	// Binary is the CLI executable name or path.
	Binary string
	// Timeout bounds one invocation. Zero means no limit beyond the
	// caller's context.
	Timeout time.Duration
}

// CLI is the real Invoker backed by the external binary.
type CLI struct {
	binary  string
	timeout time.Duration
	entropy io.Reader
	log     zerolog.Logger
}

// New creates a CLI invoker.
func New(opts Options) *CLI {
	binary := opts.Binary
	if binary == "" {
		binary = "claude"
	}
	return &CLI{
		binary:  binary,
		timeout: opts.Timeout,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		log:     logging.Component("claude"),
	}
}

// buildArgs assembles the headless invocation. stream-json requires
// verbose output in print mode.
func buildArgs(req Request) []string {
	args := []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return args
}

// Invoke runs one chat turn, streaming events to onEvent and returning
// the final result. A non-zero exit or an is_error result record both
// surface as errors.
func (c *CLI) Invoke(ctx context.Context, req Request, onEvent func(StreamEvent)) (*Result, error) {
	invocationID := ulid.MustNew(ulid.Timestamp(time.Now()), c.entropy).String()
	log := c.log.With().Str("invocationId", invocationID).Logger()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.binary, buildArgs(req)...)
	if req.WorkingDirectory != "" {
		cmd.Dir = req.WorkingDirectory
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Info().
		Str("sessionId", req.SessionID).
		Str("model", req.Model).
		Bool("resume", req.SessionID != "").
		Msg("invoking claude cli")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn claude cli: %w", err)
	}

	result, parseErr := parseStream(stdout, onEvent)
	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("claude cli timed out after %s", time.Since(start).Round(time.Millisecond))
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return nil, fmt.Errorf("claude cli command failed: %s", msg)
	}
	if parseErr != nil {
		return nil, parseErr
	}

	log.Info().
		Str("sessionId", result.SessionID).
		Dur("duration", time.Since(start)).
		Msg("claude cli finished")

	return result, nil
}

// parseStream reads NDJSON events until EOF, forwarding each one and
// collecting the session id and final result.
func parseStream(r io.Reader, onEvent func(StreamEvent)) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)

	result := &Result{}
	sawResult := false

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			// Interleaved non-JSON output is ignored, not fatal.
			continue
		}
		ev.Raw = append(json.RawMessage(nil), line...)

		if ev.SessionID != "" {
			result.SessionID = ev.SessionID
		}

		if onEvent != nil {
			onEvent(ev)
		}

		if ev.Type == "result" {
			sawResult = true
			result.Output = ev.Result
			if ev.IsError {
				return nil, fmt.Errorf("claude cli reported an error: %s", ev.Result)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claude cli output: %w", err)
	}
	if !sawResult {
		return nil, errors.New("claude cli produced no result record")
	}

	return result, nil
}
