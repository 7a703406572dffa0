package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/open-sspm/intreg/internal/auth"
)

type recordingStore struct {
	calls   int
	role    auth.Role
	names   []string
	records []Record
	err     error
}

func (s *recordingStore) BatchGetSecrets(_ context.Context, role auth.Role, names []string) ([]Record, error) {
	s.calls++
	s.role = role
	s.names = append([]string(nil), names...)
	return s.records, s.err
}

func TestBrokerFetch_SingleBatchCall(t *testing.T) {
	t.Parallel()

	store := &recordingStore{records: []Record{
		{Name: "b", Keys: []KeyValue{{Key: "B", Value: "2"}}},
		{Name: "a", Keys: []KeyValue{{Key: "A", Value: "1"}}},
	}}
	b := NewBroker(store, "test", nil)

	role := auth.UserRole("u-1")
	got, err := b.Fetch(context.Background(), role, []string{"a", " b ", "a", ""})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("store calls = %d, want 1", store.calls)
	}
	if strings.Join(store.names, ",") != "a,b" {
		t.Fatalf("store names = %v, want [a b]", store.names)
	}
	if store.role != role {
		t.Fatalf("store role = %+v, want %+v", store.role, role)
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("records = %+v, want a then b", got)
	}
}

func TestBrokerFetch_MissingNameFailsWholeBatch(t *testing.T) {
	t.Parallel()

	store := &recordingStore{records: []Record{{Name: "a", Keys: []KeyValue{{Key: "A", Value: "1"}}}}}
	b := NewBroker(store, "test", nil)

	got, err := b.Fetch(context.Background(), auth.ServiceRole(), []string{"a", "b"})
	if !errors.Is(err, ErrSecretFetchFailed) {
		t.Fatalf("Fetch() error = %v, want ErrSecretFetchFailed", err)
	}
	if got != nil {
		t.Fatalf("expected no partial records, got %+v", got)
	}
	if !strings.Contains(err.Error(), "b") {
		t.Fatalf("error %q should name the missing secret", err)
	}
}

func TestBrokerFetch_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("connection refused")
	b := NewBroker(&recordingStore{err: storeErr}, "test", nil)

	_, err := b.Fetch(context.Background(), auth.ServiceRole(), []string{"a"})
	if !errors.Is(err, ErrSecretFetchFailed) {
		t.Fatalf("error = %v, want ErrSecretFetchFailed", err)
	}
	if !errors.Is(err, storeErr) {
		t.Fatalf("error = %v, want wrapped store error", err)
	}
}

func TestBrokerFetch_NoNamesSkipsStore(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	got, err := NewBroker(store, "test", nil).Fetch(context.Background(), auth.ServiceRole(), nil)
	if err != nil || got != nil {
		t.Fatalf("Fetch(nil) = %v, %v", got, err)
	}
	if store.calls != 0 {
		t.Fatalf("store calls = %d, want 0", store.calls)
	}
}

func TestBrokerFetch_NilStore(t *testing.T) {
	t.Parallel()

	_, err := NewBroker(nil, "", nil).Fetch(context.Background(), auth.ServiceRole(), []string{"a"})
	if !errors.Is(err, ErrSecretFetchFailed) {
		t.Fatalf("error = %v, want ErrSecretFetchFailed", err)
	}
}
