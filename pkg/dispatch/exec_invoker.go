package dispatch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultModel is used when an observer does not pin its own model.
const DefaultModel = "claude-sonnet-4"

// ClaudeInvoker implements Invoker by spawning a `claude -p` subprocess per
// observer. The dispatcher's unit context bounds the subprocess lifetime;
// cancellation kills it.
type ClaudeInvoker struct {
	WorkDir string
}

// Invoke runs the observer's prompt through the claude CLI and returns the
// combined stdout/stderr text.
func (c *ClaudeInvoker) Invoke(ctx context.Context, req Request) (string, error) {
	model := req.Observer.Model
	if model == "" {
		model = DefaultModel
	}

	cmd := exec.CommandContext(ctx, "claude", "-p", BuildPrompt(req), "--model", model)
	cmd.Dir = c.WorkDir

	var outBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &outBuf

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("invoke claude: %w", err)
	}
	return outBuf.String(), nil
}
