package aws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	identitystoretypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssoadmintypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
)

const defaultHTTPTimeout = 120 * time.Second

// Options configure an IAM Identity Center client. Empty access keys fall
// back to the SDK's default credential chain.
type Options struct {
	Region          string
	InstanceArn     string
	IdentityStoreID string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Client reads users from one IAM Identity Center instance.
type Client struct {
	instanceArn     string
	identityStoreID string

	ssoadmin      ssoAdminAPI
	identitystore identityStoreAPI
}

type ssoAdminAPI interface {
	ListInstances(context.Context, *ssoadmin.ListInstancesInput, ...func(*ssoadmin.Options)) (*ssoadmin.ListInstancesOutput, error)
}

type identityStoreAPI interface {
	ListUsers(context.Context, *identitystore.ListUsersInput, ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error)
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		return nil, errors.New("aws region is required")
	}
	accessKeyID := strings.TrimSpace(opts.AccessKeyID)
	secretAccessKey := strings.TrimSpace(opts.SecretAccessKey)
	if (accessKeyID == "") != (secretAccessKey == "") {
		return nil, errors.New("aws access key id and secret access key must be set together")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(&http.Client{Timeout: defaultHTTPTimeout}),
	}
	if accessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			strings.TrimSpace(opts.SessionToken),
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newClientWithAPIs(opts, ssoadmin.NewFromConfig(cfg), identitystore.NewFromConfig(cfg)), nil
}

func newClientWithAPIs(opts Options, sso ssoAdminAPI, identity identityStoreAPI) *Client {
	return &Client{
		instanceArn:     strings.TrimSpace(opts.InstanceArn),
		identityStoreID: strings.TrimSpace(opts.IdentityStoreID),
		ssoadmin:        sso,
		identitystore:   identity,
	}
}

// ListUsers pages through the identity store. limit <= 0 means no limit.
func (c *Client) ListUsers(ctx context.Context, limit int) ([]User, error) {
	if err := c.ensureIdentityStore(ctx); err != nil {
		return nil, err
	}

	var out []User
	var token *string
	for {
		resp, err := c.identitystore.ListUsers(ctx, &identitystore.ListUsersInput{
			IdentityStoreId: aws.String(c.identityStoreID),
			NextToken:       token,
		})
		if err != nil {
			return nil, fmt.Errorf("list identity store users: %w", err)
		}

		for _, u := range resp.Users {
			out = append(out, mapUser(u))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}

		if resp.NextToken == nil || aws.ToString(resp.NextToken) == "" {
			break
		}
		token = resp.NextToken
	}
	return out, nil
}

func mapUser(u identitystoretypes.User) User {
	userID := strings.TrimSpace(aws.ToString(u.UserId))
	userName := strings.TrimSpace(aws.ToString(u.UserName))
	display := strings.TrimSpace(aws.ToString(u.DisplayName))
	if display == "" {
		display = userName
	}
	if display == "" {
		display = userID
	}
	return User{
		ID:          userID,
		UserName:    userName,
		Email:       firstNonEmptyEmail(u.Emails),
		DisplayName: display,
	}
}

func (c *Client) ensureIdentityStore(ctx context.Context) error {
	if c.identitystore == nil {
		return errors.New("aws identitystore client is required")
	}
	if c.identityStoreID != "" {
		return nil
	}
	return c.resolveInstance(ctx)
}

// resolveInstance fills whichever of instance ARN and identity store ID is
// missing. With neither set, exactly one instance must exist.
func (c *Client) resolveInstance(ctx context.Context) error {
	if c.ssoadmin == nil {
		return errors.New("aws ssoadmin client is required to discover identity center instance")
	}
	instances, err := c.listInstances(ctx)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return errors.New("no aws identity center instances found")
	}

	if c.instanceArn != "" {
		for _, inst := range instances {
			if aws.ToString(inst.InstanceArn) == c.instanceArn {
				c.identityStoreID = aws.ToString(inst.IdentityStoreId)
				break
			}
		}
		if c.identityStoreID == "" {
			return fmt.Errorf("aws identity center instance %s not found", c.instanceArn)
		}
		return nil
	}

	if len(instances) > 1 {
		return errors.New("multiple aws identity center instances found; set instance_arn or identity_store_id")
	}
	inst := instances[0]
	c.instanceArn = aws.ToString(inst.InstanceArn)
	c.identityStoreID = aws.ToString(inst.IdentityStoreId)
	if c.identityStoreID == "" {
		return errors.New("aws identity center instance metadata missing IdentityStoreId")
	}
	return nil
}

func (c *Client) listInstances(ctx context.Context) ([]ssoadmintypes.InstanceMetadata, error) {
	var out []ssoadmintypes.InstanceMetadata
	var token *string
	for {
		resp, err := c.ssoadmin.ListInstances(ctx, &ssoadmin.ListInstancesInput{NextToken: token})
		if err != nil {
			return nil, fmt.Errorf("list aws identity center instances: %w", err)
		}
		out = append(out, resp.Instances...)
		if resp.NextToken == nil || aws.ToString(resp.NextToken) == "" {
			break
		}
		token = resp.NextToken
	}
	return out, nil
}

func firstNonEmptyEmail(emails []identitystoretypes.Email) string {
	for _, email := range emails {
		value := strings.TrimSpace(aws.ToString(email.Value))
		if value != "" {
			return value
		}
	}
	return ""
}
