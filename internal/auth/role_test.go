package auth

import "testing"

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Kind
		wantErr bool
	}{
		{name: "empty defaults to service", raw: "", want: KindService},
		{name: "service", raw: "service", want: KindService},
		{name: "user mixed case", raw: " User ", want: KindUser},
		{name: "unknown", raw: "admin", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseKind(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseKind(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKind(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseKind(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestServiceRoleDefaults(t *testing.T) {
	t.Parallel()

	role := ServiceRole()
	if role.Kind != DefaultKind {
		t.Fatalf("Kind = %q, want %q", role.Kind, DefaultKind)
	}
	if err := role.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := role.OwnerID(); got != "_service" {
		t.Fatalf("OwnerID() = %q, want %q", got, "_service")
	}
	if got := (Role{}).Normalize().Kind; got != DefaultKind {
		t.Fatalf("zero role Kind = %q, want %q", got, DefaultKind)
	}
}

func TestUserRoleRequiresUserID(t *testing.T) {
	t.Parallel()

	if err := (Role{Kind: KindUser}).Validate(); err == nil {
		t.Fatal("expected error for user role without id")
	}
	role := UserRole(" u-1 ")
	if err := role.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := role.OwnerID(); got != "u-1" {
		t.Fatalf("OwnerID() = %q, want %q", got, "u-1")
	}
}

func TestHashTokenRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("s3cret-token")
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	ok, err := CompareToken("s3cret-token", hash)
	if err != nil || !ok {
		t.Fatalf("CompareToken(match) = %v, %v", ok, err)
	}
	ok, err = CompareToken("wrong", hash)
	if err != nil || ok {
		t.Fatalf("CompareToken(mismatch) = %v, %v", ok, err)
	}
}
