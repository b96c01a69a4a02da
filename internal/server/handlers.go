package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"phivault/internal/core"
	"phivault/internal/service"
)

// Handler holds the request handlers for all routes.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a Handler backed by the facade.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// textRequest is the body for the free-text endpoints.
type textRequest struct {
	ScopeID   string `json:"scope_id"`
	ScopeType string `json:"scope_type"`
	Text      string `json:"text"`
}

// documentRequest is the body for the structured endpoints. Document is any
// JSON value; its shape is preserved in the response.
type documentRequest struct {
	ScopeID   string `json:"scope_id"`
	ScopeType string `json:"scope_type"`
	Document  any    `json:"document"`
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Anonymize handles POST /v1/anonymize.
func (h *Handler) Anonymize(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	out, stats, err := h.svc.Anonymize(c.Request().Context(), req.ScopeID, req.ScopeType, req.Text)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, core.OKEnvelope(out, stats.EntityCount))
}

// DeAnonymize handles POST /v1/deanonymize.
func (h *Handler) DeAnonymize(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	out, stats, err := h.svc.DeAnonymize(c.Request().Context(), req.ScopeID, req.ScopeType, req.Text)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, core.OKEnvelope(out, stats.EntityCount))
}

// AnonymizeStructured handles POST /v1/anonymize/structured.
func (h *Handler) AnonymizeStructured(c echo.Context) error {
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	out, stats, err := h.svc.AnonymizeStructured(c.Request().Context(), req.ScopeID, req.ScopeType, req.Document)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, core.OKEnvelope(out, stats.EntityCount))
}

// DeAnonymizeStructured handles POST /v1/deanonymize/structured.
func (h *Handler) DeAnonymizeStructured(c echo.Context) error {
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	out, stats, err := h.svc.DeAnonymizeStructured(c.Request().Context(), req.ScopeID, req.ScopeType, req.Document)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, core.OKEnvelope(out, stats.EntityCount))
}

// ScopeSummary handles GET /v1/scopes/:scopeId/summary. The scope type is
// passed as a query parameter.
func (h *Handler) ScopeSummary(c echo.Context) error {
	scopeID := c.Param("scopeId")
	scopeType := c.QueryParam("scope_type")

	summary, err := h.svc.ScopeSummary(c.Request().Context(), scopeID, scopeType)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, core.OKEnvelope(summary, 0))
}

// writeError renders an engine error as the uniform error envelope with its
// mapped HTTP status.
func writeError(c echo.Context, err error) error {
	engErr := core.AsEngineError(err)
	return c.JSON(engErr.HTTPStatusCode(), core.ErrorEnvelope(engErr))
}

func badRequest(c echo.Context, message string) error {
	return writeError(c, core.NewInvalidRequestError(message, nil))
}
