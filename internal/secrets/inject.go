package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrInjectFailed reports that credentials could not be placed in scope.
var ErrInjectFailed = errors.New("secret injection failed")

// Mode selects how credentials reach an integration.
type Mode string

const (
	// ModeEnv exports credentials as process environment variables for the
	// duration of the call. All env-mode calls are serialized process-wide.
	ModeEnv Mode = "env"
	// ModeContext attaches credentials to the call's context only. There is
	// no shared state, so calls run concurrently.
	ModeContext Mode = "context"
)

// ParseMode normalizes raw. Empty input yields ModeEnv.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeEnv:
		return ModeEnv, nil
	case ModeContext:
		return ModeContext, nil
	default:
		return "", fmt.Errorf("injection mode must be one of: env, context")
	}
}

// Redactor hides credential values from log output while they are in use.
type Redactor interface {
	AddSecret(value string)
	RemoveSecret(value string)
}

// Injector runs call with records in scope and guarantees they are out of
// scope again when it returns, whatever call did.
type Injector interface {
	Scope(ctx context.Context, records []Record, call func(context.Context) error) error
}

// NewInjector returns the injector for mode.
func NewInjector(mode Mode, redactor Redactor, logger *slog.Logger) Injector {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == ModeContext {
		return &ContextInjector{Redactor: redactor}
	}
	return &EnvInjector{Redactor: redactor, Logger: logger}
}

// envMu serializes every env-mode scope in the process: the environment is
// global, so two overlapping scopes would observe and remove each other's keys.
var envMu sync.Mutex

// envScopeKey marks a context derived from a held env-mode scope.
type envScopeKey struct{}

// EnvInjector exports credentials into the process environment. Scopes do
// not nest: envMu is not reentrant, so a Scope called with a context that
// already carries an env-mode scope fails with ErrInjectFailed.
type EnvInjector struct {
	Redactor Redactor
	Logger   *slog.Logger
}

func (i *EnvInjector) Scope(ctx context.Context, records []Record, call func(context.Context) error) error {
	if len(records) == 0 {
		return call(ctx)
	}
	logger := i.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if held, _ := ctx.Value(envScopeKey{}).(bool); held {
		return fmt.Errorf("%w: env-mode scope already held by this call chain", ErrInjectFailed)
	}

	envMu.Lock()
	defer envMu.Unlock()

	release := track(i.Redactor, records)
	defer release()

	scope, err := Apply(records)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInjectFailed, err)
	}
	for _, r := range records {
		logger.Debug("secret set in environment", "secret", r.Name)
	}
	defer func() {
		if rerr := scope.Revert(); rerr != nil {
			logger.Error("failed to restore environment", "err", rerr)
		}
		for _, r := range records {
			logger.Debug("secret removed from environment", "secret", r.Name)
		}
	}()

	return call(WithCredentials(context.WithValue(ctx, envScopeKey{}, true), records))
}

// ContextInjector passes credentials through the context only.
type ContextInjector struct {
	Redactor Redactor
}

func (i *ContextInjector) Scope(ctx context.Context, records []Record, call func(context.Context) error) error {
	if len(records) == 0 {
		return call(ctx)
	}
	release := track(i.Redactor, records)
	defer release()
	return call(WithCredentials(ctx, records))
}

func track(r Redactor, records []Record) func() {
	if r == nil {
		return func() {}
	}
	values := Values(records)
	for _, v := range values {
		r.AddSecret(v)
	}
	return func() {
		for _, v := range values {
			r.RemoveSecret(v)
		}
	}
}
