package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/service"
)

// ListArtifacts lists artifact refs of a kind, newest first.
// GET /v1/artifacts/:kind?limit=
func (h *Handler) ListArtifacts(c echo.Context) error {
	refs, err := h.service.ListArtifacts(c.Request().Context(), c.Param("kind"), queryInt(c, "limit", 50))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"artifacts": refs})
}

// GetArtifact returns an artifact envelope.
// GET /v1/artifacts/:kind/:artifact_id
func (h *Handler) GetArtifact(c echo.Context) error {
	ref := domain.ArtifactRef{Kind: c.Param("kind"), ArtifactID: c.Param("artifact_id")}
	env, err := h.service.GetArtifact(c.Request().Context(), ref)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, env)
}

// PutTemplate stores a template or script artifact.
// POST /v1/sessions/:session_id/templates
func (h *Handler) PutTemplate(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.TemplateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	ec, err := h.service.ExecContextFor(ctx, c.Param("session_id"), actorFrom(c), false)
	if err != nil {
		return h.respondError(c, err)
	}
	ref, err := h.service.PutTemplate(ctx, ec, req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"artifact_ref": ref,
		"pointer_key":  req.PointerKey,
	})
}

// SetPointerRequest moves a pointer key to an artifact.
type SetPointerRequest struct {
	PointerKey  string             `json:"pointer_key"`
	ArtifactRef domain.ArtifactRef `json:"artifact_ref"`
}

// SetPointer moves a pointer through the governance pointer gate.
// POST /v1/sessions/:session_id/pointers
func (h *Handler) SetPointer(c echo.Context) error {
	ctx := c.Request().Context()

	var req SetPointerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	ec, err := h.service.ExecContextFor(ctx, c.Param("session_id"), actorFrom(c), false)
	if err != nil {
		return h.respondError(c, err)
	}
	if err := h.service.SetPointer(ctx, ec, req.PointerKey, req.ArtifactRef); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":           true,
		"pointer_key":  req.PointerKey,
		"artifact_ref": req.ArtifactRef,
	})
}

// ListPointers lists active pointers under a prefix.
// GET /v1/pointers?tenant_id=&decision_context_id=&prefix=
func (h *Handler) ListPointers(c echo.Context) error {
	pointers, err := h.service.ListPointers(c.Request().Context(),
		c.QueryParam("tenant_id"), c.QueryParam("decision_context_id"), c.QueryParam("prefix"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"pointers": pointers})
}

// ResolvePointer resolves a core key through the override layers.
// GET /v1/pointers/resolve?tenant_id=&decision_context_id=&core_key=&zone_id=&custom_ns=&app_ns=
func (h *Handler) ResolvePointer(c echo.Context) error {
	p, err := h.service.ResolvePointer(c.Request().Context(), service.PointerQuery{
		TenantID:          c.QueryParam("tenant_id"),
		DecisionContextID: c.QueryParam("decision_context_id"),
		CoreKey:           c.QueryParam("core_key"),
		ZoneID:            c.QueryParam("zone_id"),
		CustomNS:          c.QueryParam("custom_ns"),
		AppNS:             c.QueryParam("app_ns"),
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// RecentNotifications returns the buffered observe notifications.
// GET /v1/observe/recent?n=
func (h *Handler) RecentNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": h.service.Notifications(queryInt(c, "n", 0)),
	})
}
