package registry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/secrets"
)

type addInput struct {
	A int    `json:"a"`
	B string `json:"b" default:"x"`
}

func Add(in addInput) (string, error) {
	return strconv.Itoa(in.A) + in.B, nil
}

type widthsInput struct {
	Big   int64  `json:"big" default:"0"`
	Count uint64 `json:"count" default:"0"`
}

// Widths echoes 64-bit arguments so decoding limits can be checked.
func Widths(in widthsInput) (string, error) {
	return strconv.FormatInt(in.Big, 10) + "/" + strconv.FormatUint(in.Count, 10), nil
}

type greetInput struct {
	Name     string `json:"name"`
	Greeting string `enum:"hello,hi" default:"hello"`
	Times    *int   `json:"times"`
	Debug    bool   `json:"-"`
	internal string
}

func Greet(_ context.Context, in greetInput) (string, error) {
	times := 1
	if in.Times != nil {
		times = *in.Times
	}
	out := ""
	for i := 0; i < times; i++ {
		out += in.Greeting + " " + in.Name + ";" + in.internal
	}
	return out, nil
}

func Ping(context.Context) error { return nil }

type sendEmailInput struct {
	To      string `json:"to"`
	Subject string `json:"subject" default:"(none)"`
}

// mailer records what the environment and context looked like inside a call.
type mailer struct {
	mu       sync.Mutex
	envSeen  map[string]string
	ctxSeen  map[string]string
	lastTo   string
	err      error
	panicMsg string
}

func (m *mailer) SendEmail(ctx context.Context, in sendEmailInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envSeen = map[string]string{}
	m.ctxSeen = map[string]string{}
	for _, key := range []string{"HOST", "PASS"} {
		if v, ok := os.LookupEnv(key); ok {
			m.envSeen[key] = v
		}
		if v, ok := secrets.Lookup(ctx, key); ok {
			m.ctxSeen[key] = v
		}
	}
	m.lastTo = in.To
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return "", m.err
	}
	return "sent to " + in.To, nil
}

// fakeStore is an in-memory secrets.Store that records its calls.
type fakeStore struct {
	mu      sync.Mutex
	calls   int
	roles   []auth.Role
	names   [][]string
	records map[string]secrets.Record
	err     error
}

func (s *fakeStore) BatchGetSecrets(_ context.Context, role auth.Role, names []string) ([]secrets.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.roles = append(s.roles, role)
	s.names = append(s.names, append([]string(nil), names...))
	if s.err != nil {
		return nil, s.err
	}
	var out []secrets.Record
	for _, name := range names {
		if rec, ok := s.records[name]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func smtpStore() *fakeStore {
	return &fakeStore{records: map[string]secrets.Record{
		"smtp_creds": {Name: "smtp_creds", Keys: []secrets.KeyValue{
			{Key: "HOST", Value: "smtp.example.com"},
			{Key: "PASS", Value: "hunter2"},
		}},
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(store secrets.Store, opts ...RegistryOption) *Registry {
	logger := discardLogger()
	base := []RegistryOption{
		WithLogger(logger),
		WithBroker(secrets.NewBroker(store, "test", logger)),
	}
	return New(append(base, opts...)...)
}
