package httpapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/open-sspm/intreg/internal/config"
	"github.com/open-sspm/intreg/internal/http/authn"
	"github.com/open-sspm/intreg/internal/http/handlers"
	"github.com/open-sspm/intreg/internal/integrations/registry"
)

const (
	maxRequestBodyBytes = 1 << 20
	maxRequestIDLength  = 128
)

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h      *handlers.Handlers
	e      *echo.Echo
	logger *slog.Logger
	srv    *http.Server
}

// NewEchoServer creates the integration API server.
func NewEchoServer(cfg config.Config, reg *registry.Registry, logger *slog.Logger) (*EchoServer, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.Logger = logger

	h := &handlers.Handlers{Registry: reg, Logger: logger}
	es := &EchoServer{h: h, e: e, logger: logger}
	e.HTTPErrorHandler = es.httpErrorHandler

	var verifier *authn.TokenVerifier
	if strings.TrimSpace(cfg.APITokenHash) != "" {
		verifier = authn.NewTokenVerifier(cfg.APITokenHash)
	} else {
		logger.Warn("API_TOKEN_HASH is not set; integration API is unauthenticated")
	}
	es.registerRoutes(verifier)
	return es, nil
}

func (es *EchoServer) registerRoutes(verifier *authn.TokenVerifier) {
	es.e.Use(middleware.Recover())
	es.e.Use(requestID)
	es.e.Use(limitBody(maxRequestBodyBytes))
	es.e.Use(es.accessLog)

	es.e.GET("/healthz", es.h.HandleHealthz)

	api := es.e.Group("/api")
	if verifier != nil {
		api.Use(authn.RequireToken(verifier))
	}
	api.GET("/integrations", es.h.HandleListIntegrations)
	api.GET("/integrations/specs", es.h.HandleSpecs)
	api.GET("/integrations/:key", es.h.HandleGetIntegration)
	api.POST("/integrations/:key/invoke", es.h.HandleInvoke)
}

// Handler exposes the router, mainly for tests.
func (es *EchoServer) Handler() http.Handler {
	return es.e
}

// Start listens on addr until Shutdown is called.
func (es *EchoServer) Start(addr string) error {
	return es.StartServer(&http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// StartServer starts the HTTP server with a custom http.Server.
func (es *EchoServer) StartServer(server *http.Server) error {
	server.Handler = es.e
	es.srv = server
	es.logger.Info("http server listening", "addr", server.Addr)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server.
func (es *EchoServer) Shutdown(ctx context.Context) error {
	if es.srv == nil {
		return nil
	}
	return es.srv.Shutdown(ctx)
}

func (es *EchoServer) log() *slog.Logger {
	if es.logger != nil {
		return es.logger
	}
	if es.e != nil && es.e.Logger != nil {
		return es.e.Logger
	}
	return slog.Default()
}

func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(echo.HeaderXRequestID))
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(handlers.ContextKeyRequestID, id)
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}

func limitBody(n int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			req := c.Request()
			if req.Body != nil {
				req.Body = http.MaxBytesReader(c.Response(), req.Body, n)
			}
			return next(c)
		}
	}
}

func (es *EchoServer) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)
		es.log().Debug("http request",
			"request_id", handlers.RequestID(c),
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"duration", time.Since(start),
			"err", err,
		)
		return err
	}
}

func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	status := httpStatusFromError(err)
	requestID := handlers.RequestID(c)
	if status >= http.StatusInternalServerError {
		es.log().Error("request failed",
			"request_id", requestID,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", status,
			"err", err,
		)
	}

	msg := http.StatusText(status)
	switch {
	case status >= http.StatusInternalServerError:
		msg = handlers.InternalErrorMessage(requestID)
	case status == http.StatusNotFound:
		msg = "404 page not found"
	}

	var writeErr error
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		resp := handlers.ErrorResponse{Error: msg, RequestID: requestID}
		if status >= http.StatusInternalServerError {
			resp.Code = handlers.InternalErrorCode
		}
		writeErr = c.JSON(status, resp)
	} else {
		writeErr = c.String(status, msg)
	}
	if writeErr != nil {
		es.log().Debug("write error response", "err", writeErr)
	}
}

func httpStatusFromError(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code <= 599 {
			return code
		}
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}
