package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/logging"
)

func main() {
	if code := runMain(Execute, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

func runMain(execute func() error, stderr io.Writer) int {
	defer resetCommandExecutionContext()
	if err := execute(); err != nil {
		return exitCodeForError(err, stderr)
	}
	return 0
}

// commandFailure is a failed command as reported to the operator.
type commandFailure struct {
	code    int
	message string
	err     error
	silent  bool
}

// classifyFailure maps err to an exit status and log message. Caller
// mistakes exit 1, integration errors exit exitCodeIntegrationFailed and
// cancellation exits exitCodeCanceled.
func classifyFailure(err error) commandFailure {
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		f := commandFailure{code: ee.code, message: "command failed", err: err, silent: ee.silent}
		if ee.err != nil {
			f.err = ee.err
		}
		if ee.code == exitCodeIntegrationFailed {
			f.message = "integration failed"
		}
		return f
	case errors.Is(err, context.Canceled):
		return commandFailure{code: exitCodeCanceled, message: "command canceled", err: err}
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrInvalidArguments):
		return commandFailure{code: 1, message: "invalid invocation", err: err}
	default:
		return commandFailure{code: 1, message: "command failed", err: err}
	}
}

func exitCodeForError(err error, stderr io.Writer) int {
	f := classifyFailure(err)
	if !f.silent {
		emitCommandError(f, stderr)
	}
	return f.code
}

// emitCommandError writes f as one structured record for long-running
// commands and as a bare line for interactive ones.
func emitCommandError(f commandFailure, stderr io.Writer) {
	ctx := currentCommandExecutionContext()
	if ctx.UsesStructuredLog {
		fatalLogger(ctx.CommandPath, stderr).Error(f.message, "exit_code", f.code, "error", f.err)
		return
	}
	if f.code == exitCodeCanceled {
		fmt.Fprintln(stderr, "canceled")
		return
	}
	fmt.Fprintln(stderr, f.err)
}

// fatalLogger never fails: an invalid logging environment falls back to the
// default JSON config so the failure itself still gets reported.
func fatalLogger(command string, stderr io.Writer) *slog.Logger {
	cfg, err := logging.LoadConfigFromEnv()
	if err != nil {
		cfg = logging.DefaultConfig()
	}
	return logging.NewLogger(cfg, stderr, command)
}
