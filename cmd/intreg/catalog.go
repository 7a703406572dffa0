package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/open-sspm/intreg/internal/config"
	"github.com/open-sspm/intreg/internal/integrations/aws"
	"github.com/open-sspm/intreg/internal/integrations/core"
	"github.com/open-sspm/intreg/internal/integrations/email"
	"github.com/open-sspm/intreg/internal/integrations/okta"
	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/logging"
	"github.com/open-sspm/intreg/internal/secrets"
	"github.com/open-sspm/intreg/internal/secrets/dotenv"
	"github.com/open-sspm/intreg/internal/secrets/pgstore"
	"github.com/open-sspm/intreg/internal/secrets/vault"
)

// catalog is the process-wide wiring: the secrets backend, the broker and
// the registry with every built-in integration registered.
type catalog struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *registry.Registry
	pool     *pgxpool.Pool
}

func openCatalog(ctx context.Context, cfg config.Config, logger *slog.Logger) (*catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := secrets.ParseMode(cfg.InjectionMode)
	if err != nil {
		return nil, err
	}

	c := &catalog{cfg: cfg, logger: logger}
	store, err := c.openStore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.registry = registry.New(
		registry.WithLogger(logger),
		registry.WithBroker(secrets.NewBroker(store, cfg.SecretsBackend, logger)),
		registry.WithInjector(secrets.NewInjector(mode, logging.RedactorFrom(logger), logger)),
		registry.WithDefaultPlatform(cfg.DefaultPlatform),
	)
	if err := registerBuiltins(c.registry, cfg); err != nil {
		c.Close()
		return nil, err
	}
	logger.Debug("catalog ready",
		"backend", cfg.SecretsBackend,
		"injection_mode", mode,
		"integrations", len(c.registry.List()),
	)
	return c, nil
}

func (c *catalog) openStore(ctx context.Context) (secrets.Store, error) {
	switch c.cfg.SecretsBackend {
	case config.BackendNone:
		return nil, nil
	case config.BackendDotenv:
		return dotenv.New(c.cfg.DotenvDir)
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, c.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect secrets database: %w", err)
		}
		c.pool = pool
		return pgstore.New(pool)
	case config.BackendVault:
		v := c.cfg.Vault
		return vault.New(vault.Options{
			Address:          v.Address,
			Namespace:        v.Namespace,
			AuthType:         v.AuthType,
			Token:            v.Token,
			AppRoleMountPath: v.AppRoleMount,
			AppRoleRoleID:    v.AppRoleRoleID,
			AppRoleSecretID:  v.AppRoleSecretID,
			TLSSkipVerify:    v.TLSSkipVerify,
			Mount:            v.KVMount,
			Prefix:           v.KVPrefix,
			Concurrency:      v.Concurrency,
		})
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", c.cfg.SecretsBackend)
	}
}

// Close releases the backend connections.
func (c *catalog) Close() {
	if c != nil && c.pool != nil {
		c.pool.Close()
	}
}

func registerBuiltins(reg *registry.Registry, cfg config.Config) error {
	steps := []struct {
		name     string
		register func() error
	}{
		{"core", func() error { return core.Register(reg, cfg.HTTPRequestSecrets...) }},
		{"email", func() error { return email.Register(reg, nil) }},
		{"aws", func() error { return aws.Register(reg, nil) }},
		{"okta", func() error { return okta.Register(reg, nil) }},
	}
	for _, step := range steps {
		if err := step.register(); err != nil {
			return fmt.Errorf("register %s integrations: %w", step.name, err)
		}
	}
	return nil
}
