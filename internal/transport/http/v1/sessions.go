package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/service"
)

// CreateSessionRequest is the request to open a session.
type CreateSessionRequest struct {
	TenantID          string             `json:"tenant_id"`
	DecisionContextID string             `json:"decision_context_id"`
	Mode              domain.SessionMode `json:"mode,omitempty"`
	Trigger           string             `json:"trigger,omitempty"`
}

// CreateSession opens a session with its first epoch.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	session, epoch, err := h.service.SetupSession(c.Request().Context(), service.SessionRequest{
		TenantID:          req.TenantID,
		DecisionContextID: req.DecisionContextID,
		Mode:              req.Mode,
		Trigger:           req.Trigger,
		Actor:             actorFrom(c),
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"session": session,
		"epoch":   epoch,
	})
}

// ListSessions lists sessions of a tenant.
// GET /v1/sessions?tenant_id=&limit=
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.service.ListSessions(c.Request().Context(), c.QueryParam("tenant_id"), queryInt(c, "limit", 50))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession gets a session by ID.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// CloseSession closes a session.
// POST /v1/sessions/:session_id/close
func (h *Handler) CloseSession(c echo.Context) error {
	session, err := h.service.CloseSession(c.Request().Context(), c.Param("session_id"), actorFrom(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// NextEpochRequest opens another epoch.
type NextEpochRequest struct {
	Trigger            string `json:"trigger,omitempty"`
	DerivedFromEpochID string `json:"derived_from_epoch_id,omitempty"`
}

// NextEpoch opens the next epoch of a session.
// POST /v1/sessions/:session_id/epochs
func (h *Handler) NextEpoch(c echo.Context) error {
	var req NextEpochRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	epoch, err := h.service.NextEpoch(c.Request().Context(), c.Param("session_id"), req.Trigger, req.DerivedFromEpochID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, epoch)
}

// ListEpochs lists the epochs of a session.
// GET /v1/sessions/:session_id/epochs
func (h *Handler) ListEpochs(c echo.Context) error {
	epochs, err := h.service.ListEpochs(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"epochs": epochs})
}

// GetSessionEvents returns the audit trail of a session, newest first.
// GET /v1/sessions/:session_id/events?limit=&event_type=
func (h *Handler) GetSessionEvents(c echo.Context) error {
	sessionID := c.Param("session_id")
	events, err := h.service.Events(c.Request().Context(), sessionID, queryInt(c, "limit", 100), domain.EventType(c.QueryParam("event_type")))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"events":     events,
	})
}

// ListRuns lists the runs of a session.
// GET /v1/sessions/:session_id/runs
func (h *Handler) ListRuns(c echo.Context) error {
	runs, err := h.service.ListRuns(c.Request().Context(), c.Param("session_id"), queryInt(c, "limit", 50))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun gets a run by ID.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}
