package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

// Enabled reports whether addr names a listen address rather than one of the
// disabling keywords.
func Enabled(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	switch strings.ToLower(addr) {
	case "off", "disabled", "false":
		return false
	}
	return true
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	return mux
}

// Serve runs the metrics listener until ctx is done. It returns nil right
// away when addr disables metrics.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if !Enabled(addr) {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	addr = strings.TrimSpace(addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
