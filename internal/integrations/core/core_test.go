package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/secrets"
)

func TestHTTPRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			http.Redirect(w, r, "/whoami", http.StatusFound)
		case "/whoami":
			c, err := r.Cookie("session")
			if err != nil {
				http.Error(w, "no session", http.StatusUnauthorized)
				return
			}
			w.Header().Set("X-Session", c.Value)
			_, _ = io.WriteString(w, "hello")
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(body)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	resp, err := HTTPRequest(context.Background(), HTTPRequestInput{URL: srv.URL + "/login", Method: http.MethodGet, TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("HTTPRequest() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "hello" || resp.Headers["X-Session"] != "abc" {
		t.Fatalf("unexpected response %+v", resp)
	}

	body := `{"a":1}`
	ct := "application/json"
	resp, err = HTTPRequest(context.Background(), HTTPRequestInput{URL: srv.URL + "/echo", Method: http.MethodPost, Body: &body, ContentType: &ct})
	if err != nil {
		t.Fatalf("HTTPRequest() error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated || resp.Body != body || resp.Headers["Content-Type"] != ct {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHTTPRequestThroughRegistryUsesScopedToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	store := secrets.StoreFunc(func(_ context.Context, _ auth.Role, names []string) ([]secrets.Record, error) {
		return []secrets.Record{{Name: "api_token", Keys: []secrets.KeyValue{{Key: "API_TOKEN", Value: "tok-123"}}}}, nil
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(
		registry.WithLogger(logger),
		registry.WithBroker(secrets.NewBroker(store, "test", logger)),
		registry.WithInjector(secrets.NewInjector(secrets.ModeContext, nil, logger)),
	)
	if err := Register(reg, "api_token"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	spec := reg.Specs()[0]
	if spec.Platform != "core" || spec.Name != "http_request" {
		t.Fatalf("unexpected spec %+v", spec)
	}

	out, err := reg.Invoke(context.Background(), "integrations.core.http_request", auth.ServiceRole(), map[string]any{
		"url":              srv.URL,
		"bearer_token_key": "API_TOKEN",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got := out.(HTTPResponse).Body; got != "Bearer tok-123" {
		t.Fatalf("Authorization = %q", got)
	}

	_, err = reg.Invoke(context.Background(), "integrations.core.http_request", auth.ServiceRole(), map[string]any{
		"url":    srv.URL,
		"method": "TRACE",
	})
	if err == nil || !strings.Contains(err.Error(), "not one of") {
		t.Fatalf("Invoke() error = %v, want enum violation", err)
	}
}

func TestHTTPRequestBearerTokenNeverComesFromEnvironment(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "hvs.process-secret")

	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("Authorization")
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, mode := range []secrets.Mode{secrets.ModeEnv, secrets.ModeContext} {
		reg := registry.New(
			registry.WithLogger(logger),
			registry.WithInjector(secrets.NewInjector(mode, nil, logger)),
		)
		if err := Register(reg); err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		_, err := reg.Invoke(context.Background(), "integrations.core.http_request", auth.ServiceRole(), map[string]any{
			"url":              srv.URL,
			"bearer_token_key": "VAULT_TOKEN",
		})
		if !errors.Is(err, ErrCredentialNotInScope) {
			t.Fatalf("mode %s: Invoke() error = %v, want ErrCredentialNotInScope", mode, err)
		}
	}

	select {
	case got := <-received:
		t.Fatalf("request was sent with Authorization = %q", got)
	default:
	}
}

func TestHTTPRequestRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := HTTPRequest(context.Background(), HTTPRequestInput{Method: http.MethodGet}); err == nil {
		t.Fatal("expected error for empty url")
	}
}
