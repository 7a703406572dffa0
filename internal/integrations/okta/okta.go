// Package okta provides Okta integrations.
package okta

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/secrets"
)

// SecretName is the secret holding OKTA_ORG_URL and OKTA_API_TOKEN.
const SecretName = "okta"

type User struct {
	ID          string     `json:"id"`
	Login       string     `json:"login"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type ListUsersInput struct {
	Status string `json:"status" enum:"ANY,ACTIVE,STAGED,PROVISIONED,RECOVERY,PASSWORD_EXPIRED,LOCKED_OUT,SUSPENDED,DEPROVISIONED" default:"ANY"`
	Limit  int    `json:"limit" default:"0"`
}

type userLister interface {
	ListUsers(context.Context) ([]User, error)
}

// Service holds the integration functions of this package.
type Service struct {
	newClient func(baseURL, token string) (userLister, error)
}

func NewService() *Service {
	return &Service{newClient: func(baseURL, token string) (userLister, error) {
		return NewClient(baseURL, token)
	}}
}

// Register adds this package's integrations to reg.
func Register(reg *registry.Registry, svc *Service) error {
	if svc == nil {
		svc = NewService()
	}
	_, err := reg.Register(svc.ListUsers, "List users in an Okta org.",
		registry.WithSecrets(SecretName),
		registry.WithExtra("read_only", true),
	)
	return err
}

// ListUsers lists org users, optionally filtered by lifecycle status.
func (s *Service) ListUsers(ctx context.Context, in ListUsersInput) ([]User, error) {
	orgURL, ok := secrets.Lookup(ctx, "OKTA_ORG_URL")
	if !ok {
		return nil, errors.New("OKTA_ORG_URL is not set")
	}
	token, ok := secrets.Lookup(ctx, "OKTA_API_TOKEN")
	if !ok {
		return nil, errors.New("OKTA_API_TOKEN is not set")
	}
	client, err := s.newClient(orgURL, token)
	if err != nil {
		return nil, err
	}
	users, err := client.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]User, 0, len(users))
	for _, u := range users {
		if in.Status != "ANY" && !strings.EqualFold(u.Status, in.Status) {
			continue
		}
		out = append(out, u)
		if in.Limit > 0 && len(out) >= in.Limit {
			break
		}
	}
	return out, nil
}
