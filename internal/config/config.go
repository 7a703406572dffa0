package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendVault    = "vault"
	BackendPostgres = "postgres"
	BackendDotenv   = "dotenv"
	BackendNone     = "none"

	// MetricsOff disables the metrics listener when used as METRICS_ADDR.
	MetricsOff = "off"

	defaultHTTPAddr          = ":8080"
	defaultMetricsAddr       = ":9090"
	defaultSecretsBackend    = BackendDotenv
	defaultDotenvDir         = "secrets"
	defaultInjectionMode     = "env"
	defaultVaultKVMount      = "secret"
	defaultVaultKVPrefix     = "intreg"
	defaultVaultConcurrency  = 8
	defaultVaultAppRoleMount = "approle"
)

type Config struct {
	DatabaseURL        string
	HTTPAddr           string
	MetricsAddr        string
	APITokenHash       string
	SecretsBackend     string
	InjectionMode      string
	DefaultPlatform    string
	DotenvDir          string
	HTTPRequestSecrets []string
	Vault              VaultConfig
}

type VaultConfig struct {
	Address         string
	Namespace       string
	AuthType        string
	Token           string
	AppRoleMount    string
	AppRoleRoleID   string
	AppRoleSecretID string
	KVMount         string
	KVPrefix        string
	TLSSkipVerify   bool
	Concurrency     int
}

type LoadOptions struct {
	RequireDatabaseURL bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
}

// LoadRequireDB is Load for commands that always talk to Postgres.
func LoadRequireDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:        getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		APITokenHash:       strings.TrimSpace(os.Getenv("API_TOKEN_HASH")),
		SecretsBackend:     strings.ToLower(strings.TrimSpace(getenvDefault("INTREG_SECRETS_BACKEND", defaultSecretsBackend))),
		InjectionMode:      strings.ToLower(strings.TrimSpace(getenvDefault("INTREG_INJECTION_MODE", defaultInjectionMode))),
		DefaultPlatform:    strings.TrimSpace(os.Getenv("INTREG_DEFAULT_PLATFORM")),
		DotenvDir:          getenvDefault("INTREG_DOTENV_DIR", defaultDotenvDir),
		HTTPRequestSecrets: getenvList("INTREG_HTTP_REQUEST_SECRETS"),
		Vault: VaultConfig{
			Address:         strings.TrimSpace(os.Getenv("VAULT_ADDR")),
			Namespace:       strings.TrimSpace(os.Getenv("VAULT_NAMESPACE")),
			AuthType:        strings.ToLower(strings.TrimSpace(os.Getenv("VAULT_AUTH_TYPE"))),
			Token:           strings.TrimSpace(os.Getenv("VAULT_TOKEN")),
			AppRoleMount:    getenvDefault("VAULT_APPROLE_MOUNT", defaultVaultAppRoleMount),
			AppRoleRoleID:   strings.TrimSpace(os.Getenv("VAULT_APPROLE_ROLE_ID")),
			AppRoleSecretID: strings.TrimSpace(os.Getenv("VAULT_APPROLE_SECRET_ID")),
			KVMount:         getenvDefault("VAULT_KV_MOUNT", defaultVaultKVMount),
			KVPrefix:        getenvDefault("VAULT_KV_PREFIX", defaultVaultKVPrefix),
			TLSSkipVerify:   getenvBoolDefault("VAULT_TLS_SKIP_VERIFY", false),
			Concurrency:     getenvIntDefault("VAULT_CONCURRENCY", defaultVaultConcurrency),
		},
	}

	switch cfg.SecretsBackend {
	case BackendVault, BackendPostgres, BackendDotenv, BackendNone:
	default:
		return cfg, fmt.Errorf("INTREG_SECRETS_BACKEND must be one of: %s, %s, %s, %s", BackendVault, BackendPostgres, BackendDotenv, BackendNone)
	}
	switch cfg.InjectionMode {
	case "env", "context":
	default:
		return cfg, errors.New("INTREG_INJECTION_MODE must be one of: env, context")
	}

	if (opts.RequireDatabaseURL || cfg.SecretsBackend == BackendPostgres) && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.SecretsBackend == BackendVault && cfg.Vault.Address == "" {
		return cfg, errors.New("VAULT_ADDR is required for the vault secrets backend")
	}

	return cfg, nil
}

// MetricsEnabled reports whether a metrics listener should be started.
func (c Config) MetricsEnabled() bool {
	addr := strings.TrimSpace(c.MetricsAddr)
	return addr != "" && !strings.EqualFold(addr, MetricsOff)
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return def
	}
}
