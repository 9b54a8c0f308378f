package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// ListZones lists loaded zones and their capability catalogs.
// GET /v1/zones
func (h *Handler) ListZones(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"zones": h.service.Zones(),
	})
}

// RunZoneRequest is the request to execute a zone.
type RunZoneRequest struct {
	RunMode          domain.RunMode     `json:"run_mode,omitempty"`
	ZoneRunMode      domain.ZoneRunMode `json:"zone_run_mode,omitempty"`
	Inputs           map[string]any     `json:"inputs,omitempty"`
	RequestedOutputs []string           `json:"requested_outputs,omitempty"`
	AllowExternal    bool               `json:"allow_external,omitempty"`
}

// RunZone executes a zone in the latest epoch of a session.
// POST /v1/sessions/:session_id/zones/:zone_id/run
func (h *Handler) RunZone(c echo.Context) error {
	ctx := c.Request().Context()

	var req RunZoneRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	ec, err := h.service.ExecContextFor(ctx, c.Param("session_id"), actorFrom(c), req.AllowExternal)
	if err != nil {
		return h.respondError(c, err)
	}
	run, result, err := h.service.RunZone(ctx, ec, c.Param("zone_id"), req.RunMode, domain.ZoneRequest{
		RunMode:          req.ZoneRunMode,
		Inputs:           req.Inputs,
		RequestedOutputs: req.RequestedOutputs,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run":    run,
		"result": result,
	})
}
