// Package aws provides AWS IAM Identity Center integrations.
package aws

import (
	"context"
	"strings"

	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/secrets"
)

// SecretName is the secret holding AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY
// and optionally AWS_SESSION_TOKEN and AWS_REGION.
const SecretName = "aws_credentials"

// User is an IAM Identity Center user.
type User struct {
	ID          string `json:"id"`
	UserName    string `json:"user_name"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type ListUsersInput struct {
	Region          *string `json:"region" default:"null"`
	InstanceArn     *string `json:"instance_arn" default:"null"`
	IdentityStoreID *string `json:"identity_store_id" default:"null"`
	Limit           int     `json:"limit" default:"0"`
}

type clientFactory func(context.Context, Options) (*Client, error)

// Service holds the integration functions of this package.
type Service struct {
	newClient clientFactory
}

func NewService() *Service {
	return &Service{newClient: NewClient}
}

// Register adds this package's integrations to reg.
func Register(reg *registry.Registry, svc *Service) error {
	if svc == nil {
		svc = NewService()
	}
	_, err := reg.Register(svc.ListIdentityCenterUsers, "List users in AWS IAM Identity Center.",
		registry.WithSecrets(SecretName),
		registry.WithDoc("Lists identity store users. The instance is discovered when neither instance_arn nor identity_store_id is given."),
		registry.WithExtra("read_only", true),
	)
	return err
}

// ListIdentityCenterUsers lists identity store users with the credentials in
// scope for the call.
func (s *Service) ListIdentityCenterUsers(ctx context.Context, in ListUsersInput) ([]User, error) {
	opts := Options{
		Region:          deref(in.Region),
		InstanceArn:     deref(in.InstanceArn),
		IdentityStoreID: deref(in.IdentityStoreID),
		AccessKeyID:     secrets.Get(ctx, "AWS_ACCESS_KEY_ID"),
		SecretAccessKey: secrets.Get(ctx, "AWS_SECRET_ACCESS_KEY"),
		SessionToken:    secrets.Get(ctx, "AWS_SESSION_TOKEN"),
	}
	if strings.TrimSpace(opts.Region) == "" {
		opts.Region = secrets.Get(ctx, "AWS_REGION")
	}
	client, err := s.newClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	users, err := client.ListUsers(ctx, in.Limit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
