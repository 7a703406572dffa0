// Package pgstore keeps integration secrets in Postgres.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/secrets"
)

// ErrNotFound is returned by Delete when no row matched.
var ErrNotFound = errors.New("secret not found")

const (
	batchGetSQL = `SELECT name, keys FROM integration_secrets WHERE owner_id = $1 AND name = ANY($2)`

	upsertSQL = `INSERT INTO integration_secrets (id, owner_id, name, keys)
VALUES ($1, $2, $3, $4)
ON CONFLICT (owner_id, name) DO UPDATE SET keys = EXCLUDED.keys, updated_at = now()`

	deleteSQL = `DELETE FROM integration_secrets WHERE owner_id = $1 AND name = $2`

	listNamesSQL = `SELECT name FROM integration_secrets WHERE owner_id = $1 ORDER BY name`
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements secrets.Store with one query per batch.
type Store struct {
	db DB
}

var _ secrets.Store = (*Store)(nil)

func New(db DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("secrets db is nil")
	}
	return &Store{db: db}, nil
}

func (s *Store) BatchGetSecrets(ctx context.Context, role auth.Role, names []string) ([]secrets.Record, error) {
	rows, err := s.db.Query(ctx, batchGetSQL, role.OwnerID(), names)
	if err != nil {
		return nil, fmt.Errorf("query secrets: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (secrets.Record, error) {
		var name string
		var raw []byte
		if err := row.Scan(&name, &raw); err != nil {
			return secrets.Record{}, err
		}
		keys, err := decodeKeys(raw)
		if err != nil {
			return secrets.Record{}, fmt.Errorf("decode secret %q: %w", name, err)
		}
		return secrets.Record{Name: name, Keys: keys}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan secrets: %w", err)
	}
	return out, nil
}

// Put creates or replaces the secret name for role.
func (s *Store) Put(ctx context.Context, role auth.Role, rec secrets.Record) error {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return errors.New("secret name is required")
	}
	if len(rec.Keys) == 0 {
		return errors.New("secret must have at least one key")
	}
	raw, err := encodeKeys(rec.Keys)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, upsertSQL, uuid.New(), role.OwnerID(), name, raw); err != nil {
		return fmt.Errorf("upsert secret %q: %w", name, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, role auth.Role, name string) error {
	tag, err := s.db.Exec(ctx, deleteSQL, role.OwnerID(), strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("delete secret %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// ListNames returns the secret names owned by role, sorted.
func (s *Store) ListNames(ctx context.Context, role auth.Role) ([]string, error) {
	rows, err := s.db.Query(ctx, listNamesSQL, role.OwnerID())
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func encodeKeys(keys []secrets.KeyValue) ([]byte, error) {
	seen := make(map[string]struct{}, len(keys))
	clean := make([]secrets.KeyValue, 0, len(keys))
	for _, kv := range keys {
		key := strings.TrimSpace(kv.Key)
		if key == "" {
			return nil, errors.New("secret key is required")
		}
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("duplicate secret key %q", key)
		}
		seen[key] = struct{}{}
		clean = append(clean, secrets.KeyValue{Key: key, Value: kv.Value})
	}
	return json.Marshal(clean)
}

func decodeKeys(raw []byte) ([]secrets.KeyValue, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var keys []secrets.KeyValue
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}
