package exec

import (
	"bytes"
	"context"
	"os/exec"
)

// Result holds the outcome of a command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor defines an interface for running external commands.
// This allows for mocking in tests.
type Executor interface {
	// RunInDir runs command with args using dir as the working directory and
	// env appended to the inherited environment. The working directory is a
	// per-invocation parameter, never process-wide state, so callers may run
	// commands from different directories concurrently.
	RunInDir(ctx context.Context, dir, command string, args []string, env []string) (*Result, error)
}

// CommandExecutor is a concrete implementation of the Executor interface
// that runs actual commands on the host system.
type CommandExecutor struct{}

// NewCommandExecutor creates a new CommandExecutor.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

// RunInDir executes the given command and returns its result. A non-zero exit
// code is reported through Result, not as an error; the error return is
// reserved for launch failures (command not found, context expiry).
func (e *CommandExecutor) RunInDir(ctx context.Context, dir, command string, args []string, env []string) (*Result, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// cmd.Run() returns an error for non-zero exit codes, but we handle
	// the exit code explicitly. So, we only return other kinds of errors
	// (e.g., command not found or context expiry).
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, err
		}
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}, nil
}
