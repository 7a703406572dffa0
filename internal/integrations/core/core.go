// Package core provides platform-neutral integrations.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/secrets"
	"golang.org/x/net/publicsuffix"
)

const maxResponseBody = 1 << 20

// ErrCredentialNotInScope is returned when bearer_token_key names a key that
// none of the secrets fetched for this call provide.
var ErrCredentialNotInScope = errors.New("credential not in scope")

type HTTPRequestInput struct {
	URL            string  `json:"url"`
	Method         string  `json:"method" enum:"GET,POST,PUT,PATCH,DELETE,HEAD" default:"GET"`
	Body           *string `json:"body" default:"null"`
	ContentType    *string `json:"content_type" default:"null"`
	BearerTokenKey *string `json:"bearer_token_key" default:"null"`
	TimeoutSeconds int     `json:"timeout_seconds" default:"30"`
}

type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Truncated  bool              `json:"truncated,omitempty"`
}

// Register adds this package's integrations to reg. Secret names listed in
// tokenSecrets are fetched for every http_request call, so bearer_token_key
// can name one of their keys.
func Register(reg *registry.Registry, tokenSecrets ...string) error {
	_, err := reg.Register(HTTPRequest, "Send an HTTP request and return the response.",
		registry.WithSecrets(tokenSecrets...),
		registry.WithDoc("bearer_token_key names a key of one of the secrets scoped into this call; its value is sent as a bearer token. The process environment is never consulted."),
	)
	return err
}

// HTTPRequest sends one request. Cookies set by redirects are kept for the
// duration of the call only.
func HTTPRequest(ctx context.Context, in HTTPRequestInput) (HTTPResponse, error) {
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return HTTPResponse{}, fmt.Errorf("url is required")
	}
	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("create cookie jar: %w", err)
	}
	client := &http.Client{Timeout: timeout, Jar: jar}

	var body io.Reader
	if in.Body != nil {
		body = strings.NewReader(*in.Body)
	}
	req, err := http.NewRequestWithContext(ctx, in.Method, url, body)
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	if in.ContentType != nil {
		req.Header.Set("Content-Type", *in.ContentType)
	}
	if in.BearerTokenKey != nil {
		token, ok := secrets.LookupScoped(ctx, *in.BearerTokenKey)
		if !ok {
			return HTTPResponse{}, fmt.Errorf("%w: credential %q is not in scope", ErrCredentialNotInScope, *in.BearerTokenKey)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	slog.DebugContext(ctx, "making http request", "method", in.Method, "url", url)
	resp, err := client.Do(req)
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("failed to read response body: %w", err)
	}
	out := HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    make(map[string]string, len(resp.Header)),
	}
	if len(raw) > maxResponseBody {
		raw = raw[:maxResponseBody]
		out.Truncated = true
	}
	out.Body = string(raw)
	for k := range resp.Header {
		out.Headers[k] = resp.Header.Get(k)
	}
	return out, nil
}
