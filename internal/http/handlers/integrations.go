package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/open-sspm/intreg/internal/auth"
	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/open-sspm/intreg/internal/secrets"
)

// IntegrationView is one entry of the integration listing.
type IntegrationView struct {
	Key string `json:"key"`
	registry.Metadata
}

// ListResponse is the paginated integration listing.
type ListResponse struct {
	Items      []IntegrationView `json:"items"`
	Page       int               `json:"page"`
	PerPage    int               `json:"per_page"`
	Total      int               `json:"total"`
	TotalPages int               `json:"total_pages"`
}

// InvokeRequest is the body of an invoke call.
type InvokeRequest struct {
	Args        map[string]any `json:"args"`
	UserID      string         `json:"user_id"`
	WorkspaceID string         `json:"workspace_id"`
	Kind        string         `json:"kind"`
}

// InvokeResponse carries the integration result.
type InvokeResponse struct {
	Key    string `json:"key"`
	Result any    `json:"result"`
}

// HandleHealthz reports liveness.
func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"integrations": len(h.Registry.List()),
	})
}

// HandleListIntegrations lists registered integrations in registration order.
// The optional platform query parameter filters by platform.
func (h *Handlers) HandleListIntegrations(c *echo.Context) error {
	platform := strings.ToLower(strings.TrimSpace(c.QueryParam("platform")))
	meta := h.Registry.Metadata()

	items := make([]IntegrationView, 0, len(meta))
	for _, key := range h.Registry.List() {
		m, ok := meta[key]
		if !ok {
			continue
		}
		if platform != "" && m.Platform != platform {
			continue
		}
		items = append(items, IntegrationView{Key: key, Metadata: m})
	}

	perPage := parsePerPageParam(c)
	page, totalPages, offset := paginate(int64(len(items)), parsePageParam(c), perPage)
	end := min(offset+perPage, len(items))
	return c.JSON(http.StatusOK, ListResponse{
		Items:      items[offset:end],
		Page:       page,
		PerPage:    perPage,
		Total:      len(items),
		TotalPages: totalPages,
	})
}

// HandleSpecs returns every integration spec in registration order.
func (h *Handlers) HandleSpecs(c *echo.Context) error {
	return c.JSON(http.StatusOK, h.Registry.Specs())
}

// HandleGetIntegration returns the metadata of one integration.
func (h *Handlers) HandleGetIntegration(c *echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	it, err := h.Registry.Get(key)
	if err != nil {
		if isNotFound(err) {
			return h.RenderNotFound(c)
		}
		return h.RenderError(c, err)
	}
	return c.JSON(http.StatusOK, IntegrationView{Key: it.Key(), Metadata: it.Metadata()})
}

// HandleInvoke runs an integration with the caller's role and arguments.
func (h *Handlers) HandleInvoke(c *echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	it, err := h.Registry.Get(key)
	if err != nil {
		if isNotFound(err) {
			return h.RenderNotFound(c)
		}
		return h.RenderError(c, err)
	}

	var req InvokeRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, errors.New("invalid request body"))
	}
	kind, err := auth.ParseKind(req.Kind)
	if err != nil {
		return h.badRequest(c, err)
	}
	role := auth.Role{UserID: req.UserID, WorkspaceID: req.WorkspaceID, Kind: kind}
	if req.Args == nil {
		req.Args = map[string]any{}
	}

	result, err := it.Call(c.Request().Context(), role, req.Args)
	if err != nil {
		return h.renderInvokeError(c, key, err)
	}
	return c.JSON(http.StatusOK, InvokeResponse{Key: key, Result: result})
}

func (h *Handlers) renderInvokeError(c *echo.Context, key string, err error) error {
	requestID := RequestID(c)
	switch {
	case errors.Is(err, registry.ErrInvalidArguments):
		return h.badRequest(c, err)
	case errors.Is(err, secrets.ErrSecretFetchFailed):
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:     "secret fetch failed",
			Code:      "SECRET_FETCH_FAILED",
			RequestID: requestID,
		})
	case errors.Is(err, secrets.ErrInjectFailed):
		return h.RenderError(c, err)
	}

	h.logger().Warn("integration returned error", "request_id", requestID, "key", key, "err", err)
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:     err.Error(),
		Code:      "INTEGRATION_FAILED",
		RequestID: requestID,
	})
}
