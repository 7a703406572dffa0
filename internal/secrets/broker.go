package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/metrics"
)

// Broker fetches secret records for an invocation in a single batch and
// refuses to hand out partial credential sets.
type Broker struct {
	store   Store
	backend string
	logger  *slog.Logger
}

// NewBroker wraps store. backend labels metrics and logs (e.g. "vault").
func NewBroker(store Store, backend string, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	backend = strings.TrimSpace(backend)
	if backend == "" {
		backend = "custom"
	}
	return &Broker{store: store, backend: backend, logger: logger}
}

// Fetch returns one record per requested name. Any store error or missing
// name fails the whole batch with ErrSecretFetchFailed. It never retries.
func (b *Broker) Fetch(ctx context.Context, role auth.Role, names []string) ([]Record, error) {
	names = dedupeNames(names)
	if len(names) == 0 {
		return nil, nil
	}
	if b == nil || b.store == nil {
		metrics.SecretFetchesTotal.WithLabelValues("none", "error").Inc()
		return nil, fmt.Errorf("%w: no secrets store configured", ErrSecretFetchFailed)
	}

	b.logger.Debug("fetching secrets", "backend", b.backend, "secrets", names)
	start := time.Now()
	records, err := b.store.BatchGetSecrets(ctx, role, names)
	metrics.SecretFetchDuration.WithLabelValues(b.backend).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SecretFetchesTotal.WithLabelValues(b.backend, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrSecretFetchFailed, err)
	}

	byName := make(map[string]Record, len(records))
	for _, r := range records {
		byName[strings.TrimSpace(r.Name)] = r
	}
	out := make([]Record, 0, len(names))
	var missing []string
	for _, name := range names {
		r, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		r.Name = name
		out = append(out, r)
	}
	if len(missing) > 0 {
		metrics.SecretFetchesTotal.WithLabelValues(b.backend, "missing").Inc()
		return nil, fmt.Errorf("%w: secrets not found: %s", ErrSecretFetchFailed, strings.Join(missing, ", "))
	}

	metrics.SecretFetchesTotal.WithLabelValues(b.backend, "success").Inc()
	return out, nil
}

func dedupeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
