package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/christopherklint97/billr/internal/logging"
)

// cleanEnv returns os.Environ() with Claude Code session vars removed
// so the subprocess doesn't get blocked by the nested-session check.
func cleanEnv() []string {
	blocked := map[string]bool{
		"CLAUDECODE":                           true,
		"CLAUDE_CODE_ENTRYPOINT":               true,
		"CLAUDE_CODE_EXPERIMENTAL_AGENT_TEAMS": true,
	}
	var env []string
	for _, e := range os.Environ() {
		key, _, _ := strings.Cut(e, "=")
		if !blocked[key] {
			env = append(env, e)
		}
	}
	return env
}

// ClaudeCLI generates by shelling out to the claude CLI in print mode. The
// document is passed on stdin since a full-day ledger can be large.
type ClaudeCLI struct {
	Model  string
	Binary string
	logger *slog.Logger
}

func NewClaudeCLI(model string, logger *slog.Logger) *ClaudeCLI {
	if model == "" {
		model = "sonnet"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ClaudeCLI{Model: model, Binary: "claude", logger: logger}
}

// Generate ignores Temperature and MaxTokens; the CLI exposes neither.
func (c *ClaudeCLI) Generate(ctx context.Context, req Request) (string, error) {
	args := []string{
		"-p", "Produce the billing entries for the activity described on stdin.",
		"--output-format", "json",
		"--model", c.Model,
		"--system-prompt", req.System,
		"--no-session-persistence",
	}

	c.logger.Debug("invoking claude CLI",
		"model", c.Model,
		"system_prompt_len", len(req.System),
		"prompt_len", len(req.Prompt),
	)

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Env = cleanEnv()
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	err := cmd.Run()
	elapsed := time.Since(startTime)

	c.logger.Debug("claude CLI finished",
		"elapsed", elapsed,
		"stdout_bytes", stdout.Len(),
		"stderr_bytes", stderr.Len(),
		"error", err,
	)

	if err != nil {
		c.logger.Error("claude CLI failed",
			"error", err,
			"elapsed", elapsed,
			"stderr", stderr.String(),
		)
		if ctx.Err() != nil {
			return "", &GenerationError{Provider: "claude-cli", Err: fmt.Errorf("timed out after %s: %w", elapsed.Truncate(time.Second), ctx.Err())}
		}
		return "", &GenerationError{Provider: "claude-cli", Err: fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(stderr.String()))}
	}

	return c.unwrapEnvelope(stdout.Bytes()), nil
}

// unwrapEnvelope extracts the model text from the --output-format json
// envelope. Anything that is not an envelope is returned unchanged.
func (c *ClaudeCLI) unwrapEnvelope(out []byte) string {
	var envelope struct {
		Type    string          `json:"type"`
		Subtype string          `json:"subtype"`
		IsError bool            `json:"is_error"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(out, &envelope); err != nil || len(envelope.Result) == 0 {
		c.logger.Debug("no result envelope, treating as raw output", "error", err)
		return string(out)
	}

	c.logger.Debug("parsed result envelope",
		"type", envelope.Type,
		"subtype", envelope.Subtype,
		"is_error", envelope.IsError,
	)

	// result is normally a JSON string holding the model text
	var s string
	if err := json.Unmarshal(envelope.Result, &s); err == nil {
		return s
	}
	return string(envelope.Result)
}
