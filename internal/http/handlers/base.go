// Package handlers contains the JSON handlers for the integration API.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/open-sspm/intreg/internal/integrations/registry"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"
)

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Registry *registry.Registry
	Logger   *slog.Logger
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *Handlers) logger() *slog.Logger {
	if h == nil || h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// RequestID returns the request id set by the server middleware, if any.
func RequestID(c *echo.Context) string {
	if c == nil {
		return ""
	}
	id, _ := c.Get(ContextKeyRequestID).(string)
	return strings.TrimSpace(id)
}

// RenderError logs err and writes a generic 500 that never echoes err to the client.
func (h *Handlers) RenderError(c *echo.Context, err error) error {
	requestID := RequestID(c)
	h.logger().Error("request failed",
		"request_id", requestID,
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"err", err,
	)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:     InternalErrorMessage(requestID),
		Code:      InternalErrorCode,
		RequestID: requestID,
	})
}

// RenderNotFound writes the standard 404 body.
func (h *Handlers) RenderNotFound(c *echo.Context) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{
		Error:     "not found",
		RequestID: RequestID(c),
	})
}

// InternalErrorMessage is the client-safe text for unexpected failures.
func InternalErrorMessage(requestID string) string {
	if requestID == "" {
		return fmt.Sprintf("Internal server error. Code: %s", InternalErrorCode)
	}
	return fmt.Sprintf("Internal server error. Reference: %s. Code: %s", requestID, InternalErrorCode)
}

func (h *Handlers) badRequest(c *echo.Context, err error) error {
	msg := "bad request"
	if err != nil {
		msg = err.Error()
	}
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, RequestID: RequestID(c)})
}

func isNotFound(err error) bool {
	return errors.Is(err, registry.ErrNotFound)
}
