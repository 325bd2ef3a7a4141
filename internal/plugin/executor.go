package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

var (
	// ErrTimeout is returned when a plugin does not answer within the
	// executor timeout.
	ErrTimeout = errors.New("plugin call timeout")
	// ErrBadResponse is returned when a plugin's stdout is not a Response.
	ErrBadResponse = errors.New("malformed plugin response")
)

// stderrTail bounds how much plugin stderr ends up in an error message.
const stderrTail = 512

// Executor runs plugins with a per-call timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an Executor. A zero timeout bounds calls by their
// context only.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// Execute sends req to plugin on stdin and decodes the last line of its
// stdout as a Response. Earlier stdout lines are treated as chatter.
func (e *Executor) Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode plugin request: %w", err)
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, runErr := e.run(callCtx, plugin, payload)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	case runErr != nil:
		return nil, fmt.Errorf("plugin %s: %w", plugin.Manifest.Name, runErr)
	}

	line := lastLine(out)
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("%w from %s: %q", ErrBadResponse, plugin.Manifest.Name, line)
	}
	return &resp, nil
}

func (e *Executor) run(ctx context.Context, plugin *Plugin, payload []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, plugin.Executable)
	cmd.Dir = plugin.Path
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(tail(stderr.Bytes(), stderrTail)); len(msg) > 0 {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func lastLine(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		return bytes.TrimSpace(b[i+1:])
	}
	return b
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}
