package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/leadflow/internal/engine"
	"github.com/RealZimboGuy/leadflow/internal/repository"
	"github.com/RealZimboGuy/leadflow/internal/util"
)

type GraphInspector interface {
	Inspect(ctx context.Context, graphID int64) (*engine.GraphReport, error)
}

type GraphsController struct {
	AuthController
	Inspector GraphInspector
}

func NewGraphsController(inspector GraphInspector, auth KeyVerifier) *GraphsController {
	return &GraphsController{Inspector: inspector, AuthController: AuthController{Auth: auth}}
}

func (c *GraphsController) handleInspectGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	report, err := c.Inspector.Inspect(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		util.WriteError(w, http.StatusNotFound, "graph not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to inspect graph", "graph_id", id, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "failed to inspect graph")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, report)
}
