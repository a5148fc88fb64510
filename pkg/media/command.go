package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandResult captures one external command invocation.
type CommandResult struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r CommandResult) String() string {
	return r.Command + " " + strings.Join(r.Args, " ")
}

// CommandRunner abstracts process execution so tests can fake ffmpeg and TTS engines.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{
		Command: name,
		Args:    args,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, &CommandError{Result: res, Err: err}
	}
	return res, nil
}

// CommandError is a non-zero exit or a failure to start.
type CommandError struct {
	Result CommandResult
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if len(msg) > 300 {
		msg = msg[len(msg)-300:]
	}
	return fmt.Sprintf("%s exited with %d: %v %s", e.Result.Command, e.Result.ExitCode, e.Err, msg)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsNotFound reports a missing executable.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
