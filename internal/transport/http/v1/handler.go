// Package v1 provides the versioned HTTP handlers of the kernel.
package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/service"
)

// Actor headers. Authentication happens in front of the kernel; these
// only carry the already-authenticated identity.
const (
	HeaderActorID    = "X-Actor-Id"
	HeaderActorType  = "X-Actor-Type"
	HeaderActorRoles = "X-Actor-Roles"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Sessions
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.POST("/v1/sessions/:session_id/close", h.CloseSession)
	e.POST("/v1/sessions/:session_id/epochs", h.NextEpoch)
	e.GET("/v1/sessions/:session_id/epochs", h.ListEpochs)
	e.GET("/v1/sessions/:session_id/events", h.GetSessionEvents)
	e.GET("/v1/sessions/:session_id/runs", h.ListRuns)

	// Capabilities
	e.GET("/v1/agents", h.ListAgents)
	e.POST("/v1/agents/scripted", h.RegisterScriptedAgent)
	e.GET("/v1/algorithms", h.ListAlgorithms)
	e.POST("/v1/sessions/:session_id/invoke", h.InvokeAgent)

	// Zones
	e.GET("/v1/zones", h.ListZones)
	e.POST("/v1/sessions/:session_id/zones/:zone_id/run", h.RunZone)
	e.GET("/v1/runs/:run_id", h.GetRun)

	// Artifacts and pointers
	e.GET("/v1/artifacts/:kind", h.ListArtifacts)
	e.GET("/v1/artifacts/:kind/:artifact_id", h.GetArtifact)
	e.POST("/v1/sessions/:session_id/templates", h.PutTemplate)
	e.POST("/v1/sessions/:session_id/pointers", h.SetPointer)
	e.GET("/v1/pointers", h.ListPointers)
	e.GET("/v1/pointers/resolve", h.ResolvePointer)

	// Observe
	e.GET("/v1/observe/recent", h.RecentNotifications)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	if err := h.service.Ping(); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// respondError maps kernel errors onto HTTP statuses.
func (h *Handler) respondError(c echo.Context, err error) error {
	var pe *domain.PermissionError
	switch {
	case errors.As(err, &pe):
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"error":   err.Error(),
			"gate":    pe.Gate,
			"reasons": pe.Reasons,
		})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrReference):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicateRegistration):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	h.logger.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// actorFrom reads the caller identity headers. nil means the kernel acts.
func actorFrom(c echo.Context) *domain.Actor {
	id := c.Request().Header.Get(HeaderActorID)
	if id == "" {
		return nil
	}
	actor := &domain.Actor{Type: domain.ActorTypeHuman, ID: id, DisplayName: id}
	if t := c.Request().Header.Get(HeaderActorType); t != "" {
		actor.Type = domain.ActorType(t)
	}
	for _, r := range strings.Split(c.Request().Header.Get(HeaderActorRoles), ",") {
		if r = strings.TrimSpace(r); r != "" {
			actor.Roles = append(actor.Roles, r)
		}
	}
	return actor
}

func queryInt(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
