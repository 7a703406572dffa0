package dotenv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/open-sspm/intreg/internal/auth"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestBatchGetSecrets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "smtp_creds.env"), "SMTP_PASS=shared\nSMTP_HOST=mail.example.com\n")
	writeFile(t, filepath.Join(dir, "u-1", "smtp_creds.env"), "SMTP_HOST=user.example.com\nSMTP_PASS=mine\n")

	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name     string
		role     auth.Role
		wantHost string
	}{
		{name: "service falls back to shared", role: auth.ServiceRole(), wantHost: "mail.example.com"},
		{name: "user file wins", role: auth.UserRole("u-1"), wantHost: "user.example.com"},
		{name: "unknown user falls back", role: auth.UserRole("u-2"), wantHost: "mail.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			records, err := store.BatchGetSecrets(context.Background(), tt.role, []string{"smtp_creds", "missing"})
			if err != nil {
				t.Fatalf("BatchGetSecrets() error = %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("got %d records, want 1", len(records))
			}
			keys := records[0].Keys
			if len(keys) != 2 || keys[0].Key != "SMTP_HOST" || keys[1].Key != "SMTP_PASS" {
				t.Fatalf("keys not sorted: %+v", keys)
			}
			if keys[0].Value != tt.wantHost {
				t.Fatalf("SMTP_HOST = %q, want %q", keys[0].Value, tt.wantHost)
			}
		})
	}
}

func TestBatchGetSecrets_RejectsPathNames(t *testing.T) {
	t.Parallel()

	store, _ := New(t.TempDir())
	for _, name := range []string{"../etc", "a/b", "..", ""} {
		if _, err := store.BatchGetSecrets(context.Background(), auth.ServiceRole(), []string{name}); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestNew_RequiresDir(t *testing.T) {
	t.Parallel()

	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
