package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/models"
	"github.com/RealZimboGuy/leadflow/internal/util"
)

type EventIngester interface {
	Ingest(ctx context.Context, event *domain.Event) (int, error)
}

type EventQueue interface {
	Push(ctx context.Context, event *domain.Event) error
}

// EventsController is the HTTP face of event ingress.
type EventsController struct {
	AuthController
	Ingress EventIngester
	// Queue is nil when no Redis is configured.
	Queue EventQueue
}

func NewEventsController(ingress EventIngester, queue EventQueue, auth KeyVerifier) *EventsController {
	return &EventsController{Ingress: ingress, Queue: queue, AuthController: AuthController{Auth: auth}}
}

func (c *EventsController) handleIngest(w http.ResponseWriter, r *http.Request) {
	event, ok := decodeEvent(w, r)
	if !ok {
		return
	}
	triggered, err := c.Ingress.Ingest(r.Context(), event)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to ingest event", "request_id", requestID(r.Context()), "error", err)
		util.WriteError(w, http.StatusServiceUnavailable, "failed to ingest event")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.IngestResponse{Triggered: triggered})
}

func (c *EventsController) handleIngestAsync(w http.ResponseWriter, r *http.Request) {
	if c.Queue == nil {
		util.WriteError(w, http.StatusNotImplemented, "async ingress requires redis.addr")
		return
	}
	event, ok := decodeEvent(w, r)
	if !ok {
		return
	}
	if err := c.Queue.Push(r.Context(), event); err != nil {
		slog.ErrorContext(r.Context(), "Failed to queue event", "request_id", requestID(r.Context()), "error", err)
		util.WriteError(w, http.StatusServiceUnavailable, "failed to queue event")
		return
	}
	util.WriteJSONResponse(w, http.StatusAccepted, models.QueuedResponse{Queued: true, EventID: event.EventID})
}

func decodeEvent(w http.ResponseWriter, r *http.Request) (*domain.Event, bool) {
	event, err := util.DecodeJSONBody[domain.Event](r)
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid JSON payload")
		return nil, false
	}
	if event.TenantID == "" || event.EntityID == "" || event.EventKind == "" {
		util.WriteError(w, http.StatusBadRequest, "tenantId, entityId and eventKind are required")
		return nil, false
	}
	return &event, true
}
