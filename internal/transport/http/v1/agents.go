package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/service"
)

// ListAgents lists registered agents.
// GET /v1/agents?zone_id=
func (h *Handler) ListAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": h.service.ListAgents(c.QueryParam("zone_id")),
	})
}

// ListAlgorithms lists registered algorithms.
// GET /v1/algorithms?zone_id=
func (h *Handler) ListAlgorithms(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"algorithms": h.service.ListAlgorithms(c.QueryParam("zone_id")),
	})
}

// InvokeAgentRequest is the request to run an agent capability.
type InvokeAgentRequest struct {
	service.InvokeRequest
	AllowExternal bool `json:"allow_external,omitempty"`
}

// InvokeAgent runs an agent through the policy and governance gates.
// POST /v1/sessions/:session_id/invoke
func (h *Handler) InvokeAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req InvokeAgentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.TypeID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type_id is required"})
	}

	ec, err := h.service.ExecContextFor(ctx, c.Param("session_id"), actorFrom(c), req.AllowExternal)
	if err != nil {
		return h.respondError(c, err)
	}
	out, err := h.service.InvokeAgent(ctx, ec, req.InvokeRequest)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"type_id": req.TypeID,
		"outputs": out,
	})
}

// RegisterScriptedAgentRequest binds a descriptor to a stored script.
type RegisterScriptedAgentRequest struct {
	Descriptor domain.CapabilityDescriptor `json:"descriptor"`
	ScriptRef  domain.ArtifactRef          `json:"script_ref"`
}

// RegisterScriptedAgent registers an agent backed by a script artifact.
// POST /v1/agents/scripted
func (h *Handler) RegisterScriptedAgent(c echo.Context) error {
	var req RegisterScriptedAgentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.service.RegisterScriptedAgent(c.Request().Context(), req.Descriptor, req.ScriptRef); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"ok":         true,
		"type_id":    req.Descriptor.TypeID,
		"script_ref": req.ScriptRef,
	})
}
