// Package api exposes the tracker over HTTP. It is a thin shell: commands
// and reads go straight to the engine and read-model store, and every
// domain outcome is already encoded in the returned errors.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/quarryforge/quarry/internal/errors"
	"github.com/quarryforge/quarry/internal/tracker/domain/command"
	"github.com/quarryforge/quarry/internal/tracker/domain/event"
	"github.com/quarryforge/quarry/internal/tracker/engine"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

// Handler serves the tracker HTTP API.
type Handler struct {
	engine    *engine.Engine
	workItems storage.WorkItemStore
	log       zerolog.Logger
}

// New creates the API handler.
func New(eng *engine.Engine, workItems storage.WorkItemStore, log zerolog.Logger) *Handler {
	return &Handler{engine: eng, workItems: workItems, log: log}
}

// Register mounts the tracker routes on an echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.Use(RequestLogger(h.log))
	e.GET("/workitems", h.ListWorkItems)
	e.GET("/workitems/:id", h.GetWorkItem)
	e.GET("/workitems/:id/events", h.GetHistory)
	e.POST("/workitems/:id/commands", h.DispatchCommand)
}

// commandRequest is the POST /workitems/:id/commands payload.
type commandRequest struct {
	Type      string          `json:"type"`
	ActorType string          `json:"actor_type"`
	ActorID   string          `json:"actor_id"`
	Payload   json.RawMessage `json:"payload"`
}

// errorResponse is the wire shape of every non-2xx reply.
type errorResponse struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// GetWorkItem returns the folded projection of one work item.
func (h *Handler) GetWorkItem(c echo.Context) error {
	state, err := h.engine.Projection(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, renderProjection(c.Param("id"), state))
}

// ListWorkItems returns read-model rows, optionally filtered by repository.
func (h *Handler) ListWorkItems(c echo.Context) error {
	limit := intQueryParam(c, "limit", 50)
	records, err := h.workItems.List(c.Request().Context(), c.QueryParam("repository_id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, errorResponse{
			Code: string(errors.CodeStoreFailure), Message: "list work items",
		})
	}
	return c.JSON(http.StatusOK, renderRecords(records))
}

// GetHistory returns a work item's event log in canonical order.
func (h *Handler) GetHistory(c echo.Context) error {
	events, err := h.engine.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(err)
	}
	out := make([]eventResponse, len(events))
	for i, evt := range events {
		out[i] = renderEvent(evt)
	}
	return c.JSON(http.StatusOK, out)
}

// DispatchCommand validates and executes one command, replying with the
// refreshed projection on success.
func (h *Handler) DispatchCommand(c echo.Context) error {
	var req commandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorResponse{
			Code: string(errors.CodeValidationFailure), Message: "invalid request body",
		})
	}
	if req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errorResponse{
			Code: string(errors.CodeValidationFailure), Message: "command type is required",
		})
	}

	workItemID := c.Param("id")
	state, err := h.engine.Dispatch(c.Request().Context(), command.Command{
		Type:        command.Type(req.Type),
		WorkItemID:  workItemID,
		ActorType:   event.ActorType(req.ActorType),
		ActorID:     req.ActorID,
		PayloadJSON: req.Payload,
	})
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, renderProjection(workItemID, state))
}

// domainHTTPError converts a domain error into the echo error the client
// sees, preserving the machine-readable code and rejection reason.
func domainHTTPError(err error) *echo.HTTPError {
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		return echo.NewHTTPError(domainErr.Code.HTTPStatus(), errorResponse{
			Code:    string(domainErr.Code),
			Reason:  domainErr.Reason,
			Message: domainErr.Message,
		})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, errorResponse{
		Code: string(errors.CodeUnknown), Message: err.Error(),
	})
}

func intQueryParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
