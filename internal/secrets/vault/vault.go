// Package vault reads integration secrets from a HashiCorp Vault KV v2 mount.
package vault

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"slices"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/secrets"
	"golang.org/x/sync/errgroup"
)

const (
	vaultAuthTypeToken   = "token"
	vaultAuthTypeAppRole = "approle"

	defaultMount       = "secret"
	defaultPrefix      = "intreg"
	defaultConcurrency = 8
)

type Options struct {
	Address          string
	Namespace        string
	AuthType         string
	Token            string
	AppRoleMountPath string
	AppRoleRoleID    string
	AppRoleSecretID  string
	TLSSkipVerify    bool
	TLSCACertPEM     string

	// Mount is the KV v2 mount path; Prefix is the folder below it. Secrets
	// live at <Mount>/data/<Prefix>/<owner>/<name>.
	Mount       string
	Prefix      string
	Concurrency int
}

// Store implements secrets.Store against Vault.
type Store struct {
	client      *vaultapi.Client
	namespace   string
	addressHost string
	mount       string
	prefix      string
	concurrency int
}

var _ secrets.Store = (*Store)(nil)

func New(opts Options) (*Store, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}
	authType := strings.ToLower(strings.TrimSpace(opts.AuthType))
	if authType == "" {
		authType = vaultAuthTypeToken
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	cfg.HttpClient = &http.Client{
		Timeout:   30 * time.Second,
		Transport: buildHTTPTransport(opts.TLSSkipVerify, strings.TrimSpace(opts.TLSCACertPEM)),
	}
	// The broker owns failure semantics; a fetch is never retried here.
	cfg.MaxRetries = 0
	addressHost := ""
	if parsed, err := neturl.Parse(address); err == nil {
		addressHost = strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	}

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace != "" {
		client.SetNamespace(namespace)
	}

	switch authType {
	case vaultAuthTypeToken:
		token := strings.TrimSpace(opts.Token)
		if token == "" {
			return nil, errors.New("vault token is required")
		}
		client.SetToken(token)
	case vaultAuthTypeAppRole:
		roleID := strings.TrimSpace(opts.AppRoleRoleID)
		secretID := strings.TrimSpace(opts.AppRoleSecretID)
		mountPath := normalizePath(opts.AppRoleMountPath)
		if mountPath == "" {
			mountPath = "approle"
		}
		if roleID == "" {
			return nil, errors.New("vault AppRole role ID is required")
		}
		if secretID == "" {
			return nil, errors.New("vault AppRole secret ID is required")
		}
		loginPath := "auth/" + mountPath + "/login"
		secret, err := client.Logical().Write(loginPath, map[string]any{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		if err != nil {
			return nil, fmt.Errorf("vault approle login at %s: %w", loginPath, err)
		}
		if secret == nil || secret.Auth == nil || strings.TrimSpace(secret.Auth.ClientToken) == "" {
			return nil, errors.New("vault approle login succeeded without client token")
		}
		client.SetToken(secret.Auth.ClientToken)
	default:
		return nil, errors.New("vault auth type is invalid")
	}

	mount := normalizePath(opts.Mount)
	if mount == "" {
		mount = defaultMount
	}
	prefix := normalizePath(opts.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Store{
		client:      client,
		namespace:   namespace,
		addressHost: addressHost,
		mount:       mount,
		prefix:      prefix,
		concurrency: concurrency,
	}, nil
}

// BatchGetSecrets reads every name concurrently. Names that do not exist are
// omitted from the result; any transport or permission error fails the batch.
func (s *Store) BatchGetSecrets(ctx context.Context, role auth.Role, names []string) ([]secrets.Record, error) {
	owner := role.OwnerID()
	found := make([]*secrets.Record, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, name := range names {
		g.Go(func() error {
			rec, err := s.read(gctx, owner, name)
			if err != nil {
				return err
			}
			found[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]secrets.Record, 0, len(names))
	for _, rec := range found {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *Store) secretPath(owner, name string) string {
	return s.mount + "/data/" + s.prefix + "/" + pathEscape(owner) + "/" + pathEscape(name)
}

func (s *Store) read(ctx context.Context, owner, name string) (*secrets.Record, error) {
	path := s.secretPath(owner, name)
	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", path, s.withNamespaceHint(err))
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	// KV v2 wraps the payload; a deleted latest version has data == nil.
	data, ok := secret.Data["data"].(map[string]any)
	if !ok || data == nil {
		return nil, nil
	}
	return &secrets.Record{Name: name, Keys: keyValues(data)}, nil
}

func keyValues(data map[string]any) []secrets.KeyValue {
	keys := make([]string, 0, len(data))
	for k := range data {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	out := make([]secrets.KeyValue, 0, len(keys))
	for _, k := range keys {
		v := data[k]
		if v == nil {
			continue
		}
		out = append(out, secrets.KeyValue{Key: strings.TrimSpace(k), Value: fmt.Sprint(v)})
	}
	return out
}

func pathEscape(value string) string {
	return neturl.PathEscape(strings.TrimSpace(value))
}

func normalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

func (s *Store) withNamespaceHint(err error) error {
	if err == nil {
		return nil
	}
	if strings.TrimSpace(s.namespace) != "" {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(s.addressHost)), ".hashicorp.cloud") {
		return err
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "permission denied") && !strings.Contains(msg, "403") {
		return err
	}
	return fmt.Errorf("%w (tip: set namespace to \"admin\" for HCP Vault Dedicated)", err)
}

func buildHTTPTransport(skipVerify bool, caCertPEM string) http.RoundTripper {
	base, _ := http.DefaultTransport.(*http.Transport)
	if base == nil {
		return http.DefaultTransport
	}
	transport := base.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12
	transport.TLSClientConfig.InsecureSkipVerify = skipVerify
	if strings.TrimSpace(caCertPEM) != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(caCertPEM)) {
			transport.TLSClientConfig.RootCAs = pool
		}
	}
	return transport
}
