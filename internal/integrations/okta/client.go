package okta

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/okta/okta-sdk-golang/v6/okta"
)

// Client lists Okta users through the management API.
type Client struct {
	BaseURL string
	api     *sdk.APIClient
}

// NewClient validates baseURL and token and configures the SDK.
func NewClient(baseURL, token string) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	token = strings.TrimSpace(token)

	if base == "" {
		return nil, errors.New("okta base URL is required")
	}
	if token == "" {
		return nil, errors.New("okta token is required")
	}

	cfg, err := sdk.NewConfiguration(
		sdk.WithOrgUrl(base),
		sdk.WithToken(token),
		sdk.WithCache(false),
		sdk.WithRequestTimeout(120),
		sdk.WithRateLimitMaxBackOff(30),
		sdk.WithRateLimitMaxRetries(4),
	)
	if err != nil {
		return nil, fmt.Errorf("okta sdk config: %w", err)
	}
	return &Client{BaseURL: base, api: sdk.NewAPIClient(cfg)}, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	if c.api == nil {
		return nil, errors.New("okta client is not initialized")
	}

	req := c.api.UserAPI.ListUsers(ctx).
		Limit(200).
		Fields("id,status,lastLogin,profile:(email,login,displayName,firstName,lastName)").
		ContentType("application/json; okta-response=omitCredentials,omitCredentialsLinks,omitTransitioningToStatus")
	users, resp, err := req.Execute()
	if err != nil {
		return nil, formatOktaError(err, resp)
	}
	var out []User
	for {
		for _, u := range users {
			out = append(out, mapOktaUser(u))
		}
		if resp == nil || !resp.HasNextPage() {
			break
		}
		var next []sdk.User
		resp, err = resp.Next(&next)
		if err != nil {
			return nil, formatOktaError(err, resp)
		}
		users = next
	}
	return out, nil
}

func mapOktaUser(u sdk.User) User {
	var email, login, display, first, last string
	if profile := u.Profile; profile != nil {
		email = profile.GetEmail()
		login = profile.GetLogin()
		display = profile.GetDisplayName()
		first = profile.GetFirstName()
		last = profile.GetLastName()
	}
	if email == "" {
		email = login
	}
	if display == "" {
		display = strings.TrimSpace(first + " " + last)
	}
	var lastLoginAt *time.Time
	if t, ok := u.GetLastLoginOk(); ok && t != nil && !t.IsZero() {
		lastLoginAt = t
	}
	return User{
		ID:          u.GetId(),
		Login:       login,
		Email:       email,
		DisplayName: display,
		Status:      u.GetStatus(),
		LastLoginAt: lastLoginAt,
	}
}

// formatOktaError prefers the API's errorSummary over the generic SDK error.
func formatOktaError(err error, resp *sdk.APIResponse) error {
	if err == nil {
		return nil
	}
	status := ""
	if resp != nil && resp.Response != nil {
		status = resp.Response.Status
	}
	var apiErr *sdk.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		summary := ""
		switch v := apiErr.Model().(type) {
		case sdk.Error:
			summary = strings.TrimSpace(v.GetErrorSummary())
		case *sdk.Error:
			summary = strings.TrimSpace(v.GetErrorSummary())
		}
		if summary == "" {
			summary = truncate(strings.TrimSpace(string(apiErr.Body())), 4096)
		}
		if summary != "" {
			if status != "" {
				return fmt.Errorf("okta api error: %s: %s", status, summary)
			}
			return fmt.Errorf("okta api error: %s", summary)
		}
	}
	if status != "" {
		return fmt.Errorf("okta api error: %s: %w", status, err)
	}
	return err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("... (truncated, %d bytes)", len(s))
}
