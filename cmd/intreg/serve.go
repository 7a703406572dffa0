package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-sspm/intreg/internal/config"
	httpapp "github.com/open-sspm/intreg/internal/http"
	"github.com/open-sspm/intreg/internal/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the integration API and the metrics listener.",
	Args:        cobra.NoArgs,
	Annotations: structuredLog(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	logger, err := commandLogger(cmd, os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cat.Close()

	srv, err := httpapp.NewEchoServer(cfg, cat.registry, logger)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.StartServer(httpServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if cfg.MetricsEnabled() {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr, logger)
		})
	}

	logger.Info("intreg started",
		"http_addr", cfg.HTTPAddr,
		"secrets_backend", cfg.SecretsBackend,
		"injection_mode", cfg.InjectionMode,
		"integrations", len(cat.registry.List()),
	)
	return g.Wait()
}
