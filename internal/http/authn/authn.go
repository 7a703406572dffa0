// Package authn guards the integration API with a static bearer token.
package authn

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v5"
	"github.com/open-sspm/intreg/internal/auth"
)

// TokenVerifier checks bearer tokens against an argon2id hash. Verified
// tokens are remembered by digest so the KDF runs once per distinct token.
type TokenVerifier struct {
	hash string

	mu       sync.Mutex
	verified [][sha256.Size]byte
}

const maxVerifiedTokens = 16

// NewTokenVerifier returns a verifier for hash. An empty hash rejects every token.
func NewTokenVerifier(hash string) *TokenVerifier {
	return &TokenVerifier{hash: strings.TrimSpace(hash)}
}

// Verify reports whether token matches the configured hash.
func (v *TokenVerifier) Verify(token string) (bool, error) {
	if v == nil || v.hash == "" || token == "" {
		return false, nil
	}
	digest := sha256.Sum256([]byte(token))

	v.mu.Lock()
	for i := range v.verified {
		if subtle.ConstantTimeCompare(v.verified[i][:], digest[:]) == 1 {
			v.mu.Unlock()
			return true, nil
		}
	}
	v.mu.Unlock()

	ok, err := auth.CompareToken(token, v.hash)
	if err != nil || !ok {
		return false, err
	}

	v.mu.Lock()
	if len(v.verified) >= maxVerifiedTokens {
		v.verified = v.verified[1:]
	}
	v.verified = append(v.verified, digest)
	v.mu.Unlock()
	return true, nil
}

// RequireToken rejects requests without a valid "Authorization: Bearer" token.
func RequireToken(v *TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			token, ok := BearerToken(c.Request())
			if !ok {
				return handleUnauth(c)
			}
			valid, err := v.Verify(token)
			if err != nil {
				return err
			}
			if !valid {
				return handleUnauth(c)
			}
			return next(c)
		}
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	scheme, token, found := strings.Cut(raw, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func isAPIRequest(c *echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

func handleUnauth(c *echo.Context) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="intreg"`)
	if isAPIRequest(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	return echo.ErrUnauthorized
}
