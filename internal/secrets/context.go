package secrets

import (
	"context"
	"os"
)

type credentialsKey struct{}

// WithCredentials attaches records to ctx for the duration of one call.
// Later keys win when records repeat a key.
func WithCredentials(ctx context.Context, records []Record) context.Context {
	if len(records) == 0 {
		return ctx
	}
	creds := make(map[string]string)
	if parent, ok := ctx.Value(credentialsKey{}).(map[string]string); ok {
		for k, v := range parent {
			creds[k] = v
		}
	}
	for _, r := range records {
		for _, kv := range r.Keys {
			creds[kv.Key] = kv.Value
		}
	}
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// Lookup resolves a credential key, preferring call-scoped credentials on
// ctx and falling back to the process environment.
func Lookup(ctx context.Context, key string) (string, bool) {
	if v, ok := LookupScoped(ctx, key); ok {
		return v, true
	}
	return os.LookupEnv(key)
}

// LookupScoped resolves key only from the credentials attached to ctx for
// the current call. It never reads the process environment, so callers can
// use it with caller-supplied key names.
func LookupScoped(ctx context.Context, key string) (string, bool) {
	if ctx == nil {
		return "", false
	}
	creds, ok := ctx.Value(credentialsKey{}).(map[string]string)
	if !ok {
		return "", false
	}
	v, ok := creds[key]
	return v, ok
}

// Get is Lookup without the presence flag.
func Get(ctx context.Context, key string) string {
	v, _ := Lookup(ctx, key)
	return v
}
