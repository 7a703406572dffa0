package secrets

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRedactor struct {
	mu     sync.Mutex
	active map[string]int
}

func (r *fakeRedactor) AddSecret(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		r.active = map[string]int{}
	}
	r.active[v]++
}

func (r *fakeRedactor) RemoveSecret(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[v]--
	if r.active[v] == 0 {
		delete(r.active, v)
	}
}

func (r *fakeRedactor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

var smtpRecords = []Record{{Name: "smtp_creds", Keys: []KeyValue{
	{Key: "INTREG_INJECT_HOST", Value: "smtp.example.com"},
	{Key: "INTREG_INJECT_PASS", Value: "pw-123"},
}}}

func TestParseMode(t *testing.T) {
	t.Parallel()

	if m, err := ParseMode(""); err != nil || m != ModeEnv {
		t.Fatalf("ParseMode(empty) = %q, %v", m, err)
	}
	if m, err := ParseMode("Context"); err != nil || m != ModeContext {
		t.Fatalf("ParseMode(Context) = %q, %v", m, err)
	}
	if _, err := ParseMode("thread"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestEnvInjector_VisibleOnlyDuringCall(t *testing.T) {
	os.Unsetenv("INTREG_INJECT_HOST")
	os.Unsetenv("INTREG_INJECT_PASS")
	redactor := &fakeRedactor{}
	inj := NewInjector(ModeEnv, redactor, nil)

	for _, callErr := range []error{nil, errors.New("smtp: auth failed")} {
		var sawHost, sawCtx string
		err := inj.Scope(context.Background(), smtpRecords, func(ctx context.Context) error {
			sawHost = os.Getenv("INTREG_INJECT_HOST")
			sawCtx = Get(ctx, "INTREG_INJECT_PASS")
			if redactor.count() != 2 {
				t.Errorf("redactor tracks %d values during call, want 2", redactor.count())
			}
			return callErr
		})
		if err != callErr {
			t.Fatalf("Scope() error = %v, want %v unchanged", err, callErr)
		}
		if sawHost != "smtp.example.com" || sawCtx != "pw-123" {
			t.Fatalf("during call host=%q ctx pass=%q", sawHost, sawCtx)
		}
		if _, ok := os.LookupEnv("INTREG_INJECT_HOST"); ok {
			t.Fatal("INTREG_INJECT_HOST present after scope")
		}
		if _, ok := os.LookupEnv("INTREG_INJECT_PASS"); ok {
			t.Fatal("INTREG_INJECT_PASS present after scope")
		}
		if redactor.count() != 0 {
			t.Fatalf("redactor still tracks %d values", redactor.count())
		}
	}
}

func TestEnvInjector_RevertsOnPanic(t *testing.T) {
	os.Unsetenv("INTREG_INJECT_HOST")
	inj := NewInjector(ModeEnv, nil, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = inj.Scope(context.Background(), smtpRecords, func(context.Context) error {
			panic("boom")
		})
	}()

	if _, ok := os.LookupEnv("INTREG_INJECT_HOST"); ok {
		t.Fatal("INTREG_INJECT_HOST present after panic")
	}
	// The process lock must have been released.
	done := make(chan struct{})
	go func() {
		_ = inj.Scope(context.Background(), smtpRecords, func(context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("env lock not released after panic")
	}
}

func TestEnvInjector_SerializesScopes(t *testing.T) {
	inj := NewInjector(ModeEnv, nil, nil)

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = inj.Scope(context.Background(), smtpRecords, func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				if os.Getenv("INTREG_INJECT_HOST") != "smtp.example.com" {
					t.Error("credential removed while a scope was still running")
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := maxInside.Load(); got != 1 {
		t.Fatalf("max concurrent env scopes = %d, want 1", got)
	}
}

func TestEnvInjector_NestedScopeFailsInsteadOfBlocking(t *testing.T) {
	inj := NewInjector(ModeEnv, nil, nil)
	inner := []Record{{Name: "vault_creds", Keys: []KeyValue{{Key: "INTREG_INJECT_TOKEN", Value: "hvs.inner"}}}}

	done := make(chan error, 1)
	go func() {
		done <- inj.Scope(context.Background(), smtpRecords, func(ctx context.Context) error {
			return inj.Scope(ctx, inner, func(context.Context) error {
				t.Error("nested env scope ran")
				return nil
			})
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrInjectFailed) {
			t.Fatalf("nested Scope() error = %v, want ErrInjectFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("nested env scope deadlocked")
	}
	if _, ok := os.LookupEnv("INTREG_INJECT_HOST"); ok {
		t.Fatal("outer credentials left in environment")
	}

	// The lock must be free again for unrelated calls.
	if err := inj.Scope(context.Background(), inner, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Scope() after nested failure error = %v", err)
	}
}

func TestContextInjector_NoEnvironmentMutation(t *testing.T) {
	os.Unsetenv("INTREG_INJECT_HOST")
	inj := NewInjector(ModeContext, nil, nil)

	err := inj.Scope(context.Background(), smtpRecords, func(ctx context.Context) error {
		if _, ok := os.LookupEnv("INTREG_INJECT_HOST"); ok {
			t.Error("context mode must not export to the environment")
		}
		if got := Get(ctx, "INTREG_INJECT_HOST"); got != "smtp.example.com" {
			t.Errorf("Get(ctx) = %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scope() error = %v", err)
	}
}

func TestScope_NoRecordsCallsThrough(t *testing.T) {
	t.Parallel()

	called := false
	for _, mode := range []Mode{ModeEnv, ModeContext} {
		called = false
		err := NewInjector(mode, nil, nil).Scope(context.Background(), nil, func(context.Context) error {
			called = true
			return nil
		})
		if err != nil || !called {
			t.Fatalf("mode %s: called=%v err=%v", mode, called, err)
		}
	}
}
