// Package registry holds integrations: Go functions registered under a
// unique key, described by an IntegrationSpec, and invoked with their
// declared secrets in scope.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/open-sspm/intreg/internal/logging"
	"github.com/open-sspm/intreg/internal/metrics"
	"github.com/open-sspm/intreg/internal/secrets"
)

// Registry maps keys to integrations. One registry is built per process by
// the composition root and passed to whoever needs it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Integration
	order   []string // Insertion order

	broker          *secrets.Broker
	injector        secrets.Injector
	logger          *slog.Logger
	defaultPlatform string
}

// RegistryOption configures New.
type RegistryOption func(*Registry)

// WithBroker sets the broker secrets are fetched through.
func WithBroker(b *secrets.Broker) RegistryOption {
	return func(r *Registry) { r.broker = b }
}

// WithInjector sets how fetched secrets reach the integration.
func WithInjector(i secrets.Injector) RegistryOption {
	return func(r *Registry) { r.injector = i }
}

func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDefaultPlatform overrides DefaultPlatform for this registry.
func WithDefaultPlatform(platform string) RegistryOption {
	return func(r *Registry) {
		if p := strings.TrimSpace(platform); p != "" {
			r.defaultPlatform = p
		}
	}
}

// New creates an empty registry. Without WithInjector, secrets are exported
// to the process environment.
func New(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:         make(map[string]*Integration),
		order:           make([]string, 0),
		logger:          slog.Default(),
		defaultPlatform: DefaultPlatform,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.broker == nil {
		r.broker = secrets.NewBroker(nil, "none", r.logger)
	}
	if r.injector == nil {
		r.injector = secrets.NewInjector(secrets.ModeEnv, logging.RedactorFrom(r.logger), r.logger)
	}
	return r
}

// Option configures a single registration.
type Option func(*registerConfig)

type registerConfig struct {
	name     string
	platform string
	doc      string
	secrets  []string
	extra    map[string]any
}

func newRegisterConfig(opts []Option) registerConfig {
	var cfg registerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithSecrets declares the secrets fetched and put in scope for every call.
func WithSecrets(names ...string) Option {
	return func(c *registerConfig) {
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name != "" && !slices.Contains(c.secrets, name) {
				c.secrets = append(c.secrets, name)
			}
		}
	}
}

// WithExtra attaches caller-defined metadata.
func WithExtra(key string, value any) Option {
	return func(c *registerConfig) {
		if c.extra == nil {
			c.extra = make(map[string]any)
		}
		c.extra[key] = value
	}
}

// WithName overrides the name derived from the function.
func WithName(name string) Option {
	return func(c *registerConfig) { c.name = name }
}

// WithPlatform overrides the platform derived from the package path.
func WithPlatform(platform string) Option {
	return func(c *registerConfig) { c.platform = platform }
}

// WithDoc sets the docstring.
func WithDoc(doc string) Option {
	return func(c *registerConfig) { c.doc = doc }
}

// Register validates fn, derives its key and spec, and adds it. A key is
// registered at most once; later attempts fail with ErrDuplicateRegistration
// and leave the existing entry untouched.
func (r *Registry) Register(fn any, description string, opts ...Option) (*Integration, error) {
	it, err := r.register(fn, description, newRegisterConfig(opts))
	if err != nil {
		metrics.RegistrationFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		r.logger.Warn("integration registration rejected", "err", err)
		return nil, err
	}
	metrics.RegisteredIntegrations.Inc()
	r.logger.Debug("integration registered", "key", it.key, "secrets", it.meta.Secrets)
	return it, nil
}

func (r *Registry) register(fn any, description string, cfg registerConfig) (*Integration, error) {
	v, err := funcValue(fn)
	if err != nil {
		return nil, err
	}
	platform, name, key, err := resolveKey(v, cfg, r.defaultPlatform)
	if err != nil {
		return nil, err
	}
	if r.Has(key) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRegistration, key)
	}
	d, err := describe(v, name, platform, description, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	it := &Integration{
		key: key,
		sig: d.sig,
		meta: Metadata{
			Platform:      platform,
			Description:   d.spec.Description,
			ReturnType:    d.returnType,
			Specification: d.spec,
			Secrets:       cfg.secrets,
			Extra:         maps.Clone(cfg.extra),
		},
		registry: r,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRegistration, key)
	}
	r.entries[key] = it
	r.order = append(r.order, key)
	return it, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateRegistration):
		return "duplicate"
	case errors.Is(err, ErrUnsupportedSignature):
		return "unsupported_signature"
	default:
		return "invalid"
	}
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Get returns the integration registered under key.
func (r *Registry) Get(key string) (*Integration, error) {
	r.mu.RLock()
	it, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return it, nil
}

// Metadata returns a copy of every entry's metadata keyed by key.
func (r *Registry) Metadata() map[string]Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Metadata, len(r.entries))
	for key, it := range r.entries {
		out[key] = it.meta.clone()
	}
	return out
}

// Integrations returns every registered integration keyed by key.
func (r *Registry) Integrations() map[string]*Integration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.entries)
}

// List returns the registered keys in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Specs returns one spec per registered key in registration order.
func (r *Registry) Specs() []IntegrationSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IntegrationSpec, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.entries[key].meta.Specification.clone())
	}
	return out
}

// Integration is a registered function. Handles are safe for concurrent use.
type Integration struct {
	key      string
	sig      *signature
	meta     Metadata
	registry *Registry
}

func (it *Integration) Key() string { return it.key }

func (it *Integration) Spec() IntegrationSpec { return it.meta.Specification.clone() }

func (it *Integration) Metadata() Metadata { return it.meta.clone() }
