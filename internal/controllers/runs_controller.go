package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/RealZimboGuy/leadflow/internal/engine"
	"github.com/RealZimboGuy/leadflow/internal/models"
	"github.com/RealZimboGuy/leadflow/internal/repository"
	"github.com/RealZimboGuy/leadflow/internal/util"
)

type RunsController struct {
	AuthController
	Runs        engine.RunRepo
	Steps       engine.StepRepo
	Outbox      engine.OutboxRepo
	StepActions engine.StepActionRepo
}

func NewRunsController(runs engine.RunRepo, steps engine.StepRepo, outbox engine.OutboxRepo, stepActions engine.StepActionRepo, auth KeyVerifier) *RunsController {
	return &RunsController{Runs: runs, Steps: steps, Outbox: outbox, StepActions: stepActions, AuthController: AuthController{Auth: auth}}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		util.WriteError(w, http.StatusBadRequest, "id is required")
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "id is an integer")
		return 0, false
	}
	return id, true
}

func (c *RunsController) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	run, err := c.Runs.FindByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		util.WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load run", "run_id", id, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	steps, err := c.Steps.FindByRun(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load steps", "run_id", id, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "failed to load steps")
		return
	}
	messages, err := c.Outbox.FindByRun(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load messages", "run_id", id, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.RunResponse{Run: run, Steps: steps, Messages: messages})
}
