package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/service"
)

// Handler handles the chat API.
type Handler struct {
	service *service.Service
	log     zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		service: svc,
		log:     logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/chat/stream", h.ChatStream)
	e.POST("/api/chat", h.Chat)
	e.DELETE("/api/session/:session_id", h.DeleteSession)

	e.GET("/api/sessions/:session_id/messages", h.GetSessionMessages)
	e.GET("/api/sessions/:session_id/trace", h.GetSessionTrace)

	e.GET("/api/health", h.Health)
}

// ChatStream runs a turn and streams its frames as server-sent events.
// POST /api/chat/stream
func (h *Handler) ChatStream(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	turn, err := h.service.Begin(ctx, req)
	if err != nil {
		return h.turnError(c, err)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	err = turn.Run(ctx, func(ev domain.StreamEvent) error {
		data, err := domain.EncodeStreamEvent(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are already sent
		h.log.Debug().Err(err).Str("turn_id", turn.ID).Msg("stream aborted")
	}
	return nil
}

// Chat runs a turn and returns the whole response at once.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.Chat(c.Request().Context(), req)
	if err != nil {
		return h.turnError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// DeleteSession removes a session.
// DELETE /api/session/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	sessionID := c.Param("session_id")

	if err := h.service.DeleteSession(c.Request().Context(), sessionID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted", "session_id": sessionID})
}

// GetSessionMessages returns the conversation of a session.
// GET /api/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("session_id")
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	messages, err := h.service.ListMessages(c.Request().Context(), sessionID, limit)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
	})
}

// GetSessionTrace returns the trace of the session's latest turn.
// GET /api/sessions/:session_id/trace
func (h *Handler) GetSessionTrace(c echo.Context) error {
	sessionID := c.Param("session_id")

	turnID, events, err := h.service.LatestTrace(c.Request().Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turn_id":    turnID,
		"trace":      events,
	})
}

// Health returns health status.
// GET /api/health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.HealthResponse{
		Status: "healthy",
		Agents: h.service.Agents(),
	})
}

func (h *Handler) turnError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrEmptyMessage) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	h.log.Error().Err(err).Msg("chat request failed")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
