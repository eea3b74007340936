package builtin

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/tool"
)

const shellMaxOutput = 64 * 1024

// Runner executes a shell command and returns its combined output. The
// sandbox package provides a container-backed implementation; LocalRunner
// runs directly on the host.
type Runner interface {
	Run(ctx context.Context, command string) (output string, exitCode int, err error)
}

// LocalRunner executes commands on the host via sh -c.
type LocalRunner struct {
	// Dir is the working directory for commands; empty means inherit.
	Dir string
}

var _ Runner = (*LocalRunner)(nil)

func (r *LocalRunner) Run(ctx context.Context, command string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.Dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		err = nil
	}
	return buf.String(), exitCode, err
}

// ShellTool runs a shell command through the configured Runner. Shell
// commands can touch anything, so the tool is serial: it conflicts with
// every other invocation in the batch and runs in a layer of its own.
type ShellTool struct {
	Runner Runner
}

var _ tool.Tool = (*ShellTool)(nil)

func (t *ShellTool) Name() string { return "run_shell" }

func (t *ShellTool) Description() string {
	return "Run a shell command and return its combined stdout/stderr output."
}

func (t *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "The shell command to run."},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) ResourceKeys(params map[string]any) ([]string, bool) {
	return nil, true
}

func (t *ShellTool) Execute(ctx context.Context, params map[string]any) *tool.Result {
	command, _ := stringParam(params, "command")

	runner := t.Runner
	if runner == nil {
		runner = &LocalRunner{}
	}

	slog.Info("Running shell command", "command", command)
	output, exitCode, err := runner.Run(ctx, command)
	if ctx.Err() != nil {
		return tool.Errorf(domain.ErrCancelled, true, "command cancelled")
	}
	if err != nil {
		return tool.Errorf(domain.ErrToolExecution, true, "command failed to start: %v", err)
	}

	output = strings.TrimRight(output, "\n")
	if len(output) > shellMaxOutput {
		output = output[:shellMaxOutput] + "\n[output truncated]"
	}
	if exitCode != 0 {
		return tool.Errorf(domain.ErrToolExecution, true, "exit code %d\n%s", exitCode, output)
	}
	if output == "" {
		return tool.OK("(no output)")
	}
	return tool.OK(output)
}
