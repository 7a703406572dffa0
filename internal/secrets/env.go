package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// EnvScope records the process environment changes made by Apply so they
// can be undone exactly.
type EnvScope struct {
	applied []envChange
}

type envChange struct {
	secret  string
	key     string
	prev    string
	hadPrev bool
}

// Apply writes every key/value of records into the process environment.
// If a write fails, the keys already written are reverted before the error
// is returned, so a failed Apply leaves no residue.
func Apply(records []Record) (*EnvScope, error) {
	s := &EnvScope{}
	touched := make(map[string]struct{})
	for _, r := range records {
		for _, kv := range r.Keys {
			key := strings.TrimSpace(kv.Key)
			if key == "" || strings.ContainsAny(key, "=\x00") {
				err := fmt.Errorf("secret %q: invalid environment key %q", r.Name, kv.Key)
				return nil, errors.Join(err, s.Revert())
			}
			if _, ok := touched[key]; !ok {
				prev, had := os.LookupEnv(key)
				s.applied = append(s.applied, envChange{secret: r.Name, key: key, prev: prev, hadPrev: had})
				touched[key] = struct{}{}
			}
			if err := os.Setenv(key, kv.Value); err != nil {
				err = fmt.Errorf("secret %q: set %s: %w", r.Name, key, err)
				return nil, errors.Join(err, s.Revert())
			}
		}
	}
	return s, nil
}

// Keys returns the environment keys touched by the scope, in apply order.
func (s *EnvScope) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.applied))
	for _, c := range s.applied {
		out = append(out, c.key)
	}
	return out
}

// Revert restores every touched key to its state before Apply: keys that did
// not exist are removed, overwritten keys get their prior value back. It is
// safe to call more than once.
func (s *EnvScope) Revert() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.applied) - 1; i >= 0; i-- {
		c := s.applied[i]
		var err error
		if c.hadPrev {
			err = os.Setenv(c.key, c.prev)
		} else {
			err = os.Unsetenv(c.key)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("secret %q: restore %s: %w", c.secret, c.key, err))
		}
	}
	s.applied = nil
	return errors.Join(errs...)
}
