package controllers

import (
	"net/http"

	"github.com/RealZimboGuy/leadflow/internal/models"
	"github.com/RealZimboGuy/leadflow/internal/util"
)

// RegisterRoutes wires the HTTP routes for this controller.
func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/events", c.RequireAuth(c.handleIngest))
	mux.HandleFunc("POST /api/events/async", c.RequireAuth(c.handleIngestAsync))
}
func (c *TickController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tick", c.RequireAuth(c.handleStepTick))
	mux.HandleFunc("POST /api/outbox/tick", c.RequireAuth(c.handleOutboxTick))
}
func (c *RunsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs/{id}", c.RequireAuth(c.handleGetRun))
	mux.HandleFunc("GET /api/runs/{id}/actions", c.RequireAuth(c.handleGetActionsForRun))
}
func (c *GraphsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/graphs/{id}/inspect", c.RequireAuth(c.handleInspectGraph))
}
func (c *ExecutorsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/executors", c.RequireAuth(c.handleGetExecutors))
}

func RegisterHealthRoute(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSONResponse(w, http.StatusOK, models.HealthResponse{Status: "ok"})
	})
}
