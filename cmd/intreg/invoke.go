package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/secrets"
	"github.com/spf13/cobra"
)

var (
	invokeArgPairs    []string
	invokeArgsJSON    string
	invokeUserID      string
	invokeWorkspaceID string
	invokeKind        string
)

var invokeCmd = &cobra.Command{
	Use:   "invoke KEY",
	Short: "Invoke one integration with scoped secrets and print its result as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		callArgs, err := parseInvokeArgs(invokeArgsJSON, invokeArgPairs)
		if err != nil {
			return err
		}
		role, err := parseRole(invokeUserID, invokeWorkspaceID, invokeKind)
		if err != nil {
			return err
		}
		key := strings.TrimSpace(args[0])

		return withCatalog(cmd, func(ctx context.Context, cat *catalog) error {
			result, err := cat.registry.Invoke(ctx, key, role, callArgs)
			if err != nil {
				return invokeError(err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		})
	},
}

// parseInvokeArgs merges --args-json with --arg pairs; pairs win. A pair
// value that parses as JSON is used as such, anything else is a string.
func parseInvokeArgs(argsJSON string, pairs []string) (map[string]any, error) {
	out := map[string]any{}
	if raw := strings.TrimSpace(argsJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("--args-json must be a JSON object: %w", err)
		}
		if out == nil {
			out = map[string]any{}
		}
	}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("--arg %q must look like name=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[name] = v
	}
	return out, nil
}

func parseRole(userID, workspaceID, kind string) (auth.Role, error) {
	k, err := auth.ParseKind(kind)
	if err != nil {
		return auth.Role{}, err
	}
	if kind == "" && strings.TrimSpace(userID) != "" {
		k = auth.KindUser
	}
	role := auth.Role{UserID: userID, WorkspaceID: workspaceID, Kind: k}.Normalize()
	if err := role.Validate(); err != nil {
		return auth.Role{}, err
	}
	return role, nil
}

// invokeError keeps caller mistakes on exit code 1 and reports failures of
// the integration itself with a distinct code.
func invokeError(err error) error {
	switch {
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, registry.ErrInvalidArguments),
		errors.Is(err, secrets.ErrSecretFetchFailed),
		errors.Is(err, secrets.ErrInjectFailed):
		return err
	}
	return &exitError{code: exitCodeIntegrationFailed, err: fmt.Errorf("integration failed: %w", err)}
}

func init() {
	invokeCmd.Flags().StringArrayVar(&invokeArgPairs, "arg", nil, "Argument as name=value; repeatable")
	invokeCmd.Flags().StringVar(&invokeArgsJSON, "args-json", "", "Arguments as a JSON object")
	invokeCmd.Flags().StringVar(&invokeUserID, "user-id", "", "User the secrets are scoped to")
	invokeCmd.Flags().StringVar(&invokeWorkspaceID, "workspace-id", "", "Workspace for log correlation")
	invokeCmd.Flags().StringVar(&invokeKind, "kind", "", "Role kind: service or user (default service, or user when --user-id is set)")
}
