// Package secrets fetches named credential bundles from a backing store and
// scopes them to a single integration invocation.
package secrets

import (
	"context"
	"errors"

	"github.com/open-sspm/intreg/internal/auth"
)

// ErrSecretFetchFailed wraps every failure to produce a complete credential set.
var ErrSecretFetchFailed = errors.New("secret fetch failed")

// KeyValue is one credential entry of a Record.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Record is a named bundle of credentials, as returned by a Store.
type Record struct {
	Name string     `json:"name"`
	Keys []KeyValue `json:"keys"`
}

// Store is the external secrets backend. Implementations return one record
// per name they hold; names they do not hold are simply absent.
type Store interface {
	BatchGetSecrets(ctx context.Context, role auth.Role, names []string) ([]Record, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, role auth.Role, names []string) ([]Record, error)

func (f StoreFunc) BatchGetSecrets(ctx context.Context, role auth.Role, names []string) ([]Record, error) {
	return f(ctx, role, names)
}

// Values returns every credential value carried by records.
func Values(records []Record) []string {
	var out []string
	for _, r := range records {
		for _, kv := range r.Keys {
			if kv.Value != "" {
				out = append(out, kv.Value)
			}
		}
	}
	return out
}
