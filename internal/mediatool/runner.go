// Package mediatool isolates external media tool invocation behind a
// capability interface so pipeline stages can be tested with fakes.
package mediatool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// Runner executes an external tool and returns its captured output.
type Runner interface {
	Run(ctx context.Context, bin string, args []string) (Result, error)
}

// Result carries the outcome of one tool invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ExecRunner runs tools as blocking subprocesses with captured
// stdout/stderr. Context cancellation kills the process.
type ExecRunner struct {
	Logger zerolog.Logger
}

func (e *ExecRunner) Run(ctx context.Context, bin string, args []string) (Result, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil {
		e.Logger.Debug().
			Str("bin", bin).
			Int("exit_code", res.ExitCode).
			Str("stderr", truncate(stderr.String(), 500)).
			Msg("tool invocation failed")
		return res, fmt.Errorf("%s: %w", bin, runErr)
	}
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
