package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{addr: "", want: false},
		{addr: "off", want: false},
		{addr: " Disabled ", want: false},
		{addr: "false", want: false},
		{addr: ":9090", want: true},
	}
	for _, tt := range tests {
		if got := Enabled(tt.addr); got != tt.want {
			t.Fatalf("Enabled(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestServeDisabledReturnsImmediately(t *testing.T) {
	t.Parallel()

	if err := Serve(context.Background(), "off", nil); err != nil {
		t.Fatalf("Serve(off) error = %v", err)
	}
}

func TestHandlerExposesRegistryMetrics(t *testing.T) {
	t.Parallel()

	InvocationsTotal.WithLabelValues("integrations.test.metric_probe", "success").Inc()
	RegisteredIntegrations.Set(3)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `intreg_invocations_total{key="integrations.test.metric_probe",status="success"}`) {
		t.Fatalf("invocation counter missing from /metrics output")
	}
	if !strings.Contains(string(body), "intreg_registered_integrations") {
		t.Fatalf("registered gauge missing from /metrics output")
	}
}
