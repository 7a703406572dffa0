// Package dotenv serves integration secrets from .env files on disk.
//
// A secret named smtp_creds for owner u-1 is read from
// <dir>/u-1/smtp_creds.env, falling back to <dir>/smtp_creds.env.
package dotenv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/secrets"
)

const fileExt = ".env"

// Store implements secrets.Store over a directory of .env files.
type Store struct {
	dir string
}

var _ secrets.Store = (*Store)(nil)

func New(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("dotenv secrets dir is required")
	}
	return &Store{dir: filepath.Clean(dir)}, nil
}

// Dir returns the directory secrets are read from.
func (s *Store) Dir() string { return s.dir }

func (s *Store) BatchGetSecrets(ctx context.Context, role auth.Role, names []string) ([]secrets.Record, error) {
	owner := role.OwnerID()
	if err := validName(owner); err != nil {
		return nil, fmt.Errorf("invalid secret owner %q", owner)
	}
	out := make([]secrets.Record, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := validName(name); err != nil {
			return nil, err
		}
		values, err := s.read(owner, name)
		if err != nil {
			return nil, err
		}
		if values == nil {
			continue
		}
		out = append(out, secrets.Record{Name: name, Keys: sortedKeys(values)})
	}
	return out, nil
}

func (s *Store) read(owner, name string) (map[string]string, error) {
	for _, path := range []string{
		filepath.Join(s.dir, owner, name+fileExt),
		filepath.Join(s.dir, name+fileExt),
	} {
		values, err := godotenv.Read(path)
		if err == nil {
			return values, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return nil, fmt.Errorf("read secret %q: %w", name, err)
	}
	return nil, nil
}

// validName keeps secret and owner names inside the store directory.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, os.PathSeparator) {
		return fmt.Errorf("invalid secret name %q", name)
	}
	return nil
}

func sortedKeys(values map[string]string) []secrets.KeyValue {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]secrets.KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, secrets.KeyValue{Key: k, Value: values[k]})
	}
	return out
}
