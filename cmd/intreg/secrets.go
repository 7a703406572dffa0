package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/config"
	"github.com/open-sspm/intreg/internal/secrets"
	"github.com/open-sspm/intreg/internal/secrets/pgstore"
	"github.com/spf13/cobra"
)

const secretsCommandTimeout = 15 * time.Second

var (
	secretsUserID   string
	secretsKind     string
	secretsKeys     []string
	secretsFromFile string
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage secrets in the postgres secrets store.",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Create or replace a secret. Values come from --from-file or a prompt per --key.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := buildRecord(cmd, args[0])
		if err != nil {
			return err
		}
		return withSecretStore(cmd, func(ctx context.Context, store *pgstore.Store, role auth.Role) error {
			if err := store.Put(ctx, role, rec); err != nil {
				return err
			}
			cmd.Printf("stored secret %s (%d keys) for %s\n", rec.Name, len(rec.Keys), role.OwnerID())
			return nil
		})
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a secret.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		return withSecretStore(cmd, func(ctx context.Context, store *pgstore.Store, role auth.Role) error {
			if err := store.Delete(ctx, role, name); err != nil {
				if errors.Is(err, pgstore.ErrNotFound) {
					return fmt.Errorf("secret %q not found for %s", name, role.OwnerID())
				}
				return err
			}
			cmd.Printf("deleted secret %s\n", name)
			return nil
		})
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secret names. Values are never printed.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSecretStore(cmd, func(ctx context.Context, store *pgstore.Store, role auth.Role) error {
			names, err := store.ListNames(ctx, role)
			if err != nil {
				return err
			}
			for _, name := range names {
				cmd.Println(name)
			}
			return nil
		})
	},
}

func withSecretStore(cmd *cobra.Command, fn func(context.Context, *pgstore.Store, auth.Role) error) error {
	role, err := parseRole(secretsUserID, "", secretsKind)
	if err != nil {
		return err
	}
	cfg, err := config.LoadRequireDB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretsCommandTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := pgstore.New(pool)
	if err != nil {
		return err
	}
	return fn(ctx, store, role)
}

// buildRecord reads key/values from --from-file (dotenv syntax) and then
// prompts for every --key not already set by the file.
func buildRecord(cmd *cobra.Command, name string) (secrets.Record, error) {
	rec := secrets.Record{Name: strings.TrimSpace(name)}
	seen := map[string]bool{}

	if path := strings.TrimSpace(secretsFromFile); path != "" {
		values, err := godotenv.Read(path)
		if err != nil {
			return secrets.Record{}, fmt.Errorf("read %s: %w", path, err)
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			rec.Keys = append(rec.Keys, secrets.KeyValue{Key: k, Value: values[k]})
			seen[k] = true
		}
	}

	for _, k := range secretsKeys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		v, err := promptSecret(cmd, k)
		if err != nil {
			return secrets.Record{}, err
		}
		rec.Keys = append(rec.Keys, secrets.KeyValue{Key: k, Value: v})
		seen[k] = true
	}

	if len(rec.Keys) == 0 {
		return secrets.Record{}, errors.New("no values given; use --from-file or --key")
	}
	return rec, nil
}

func init() {
	secretsCmd.PersistentFlags().StringVar(&secretsUserID, "user-id", "", "Owner of the secret (default: the shared service namespace)")
	secretsCmd.PersistentFlags().StringVar(&secretsKind, "kind", "", "Role kind: service or user")
	secretsSetCmd.Flags().StringArrayVar(&secretsKeys, "key", nil, "Credential key to prompt for; repeatable")
	secretsSetCmd.Flags().StringVar(&secretsFromFile, "from-file", "", "Read KEY=VALUE lines from a dotenv file")
	secretsCmd.AddCommand(secretsSetCmd, secretsDeleteCmd, secretsListCmd)
}
