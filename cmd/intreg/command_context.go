package main

import (
	"io"
	"log/slog"
	"sync"

	"github.com/open-sspm/intreg/internal/logging"
	"github.com/spf13/cobra"
)

// annotationStructuredLog marks long-running commands whose output is
// structured logs rather than human-readable text.
const annotationStructuredLog = "intreg/structured-log"

type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	commandContextMu sync.Mutex
	commandContext   commandExecutionContext
)

func currentCommandExecutionContext() commandExecutionContext {
	commandContextMu.Lock()
	defer commandContextMu.Unlock()
	return commandContext
}

func setCommandExecutionContext(ctx commandExecutionContext) {
	commandContextMu.Lock()
	defer commandContextMu.Unlock()
	commandContext = ctx
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationStructuredLog] == "true" {
			return true
		}
	}
	return false
}

func structuredLog() map[string]string {
	return map[string]string{annotationStructuredLog: "true"}
}

// commandLogger builds the logger for cmd. Structured commands fail on an
// invalid logging environment; the others fall back to the defaults.
func commandLogger(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	path := cmd.CommandPath()
	if commandUsesStructuredLogging(cmd) {
		return logging.BootstrapFromEnv(logging.BootstrapOptions{Command: path, Writer: w})
	}
	cfg, err := logging.LoadConfigFromEnv()
	if err != nil {
		cfg = logging.DefaultConfig()
	}
	return logging.NewLogger(cfg, w, path), nil
}
