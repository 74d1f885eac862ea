package controllers

import (
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/util"
)

func (c *RunsController) handleGetActionsForRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actions, err := c.StepActions.FindAllByRunID(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to fetch step actions", "run_id", id, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "failed to fetch actions")
		return
	}
	if actions == nil {
		actions = []*domain.StepAction{}
	}
	util.WriteJSONResponse(w, http.StatusOK, actions)
}
