package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/leadflow/internal/models"
	"github.com/RealZimboGuy/leadflow/internal/util"
)

// Ticker runs one scheduler pass, e.g. engine.StepScheduler.
type Ticker interface {
	Tick(ctx context.Context) (int, error)
}

// TickController lets an external cron drive the engine instead of, or in
// addition to, the in-process workers.
type TickController struct {
	AuthController
	Steps  Ticker
	Outbox Ticker
}

func NewTickController(steps, outbox Ticker, auth KeyVerifier) *TickController {
	return &TickController{Steps: steps, Outbox: outbox, AuthController: AuthController{Auth: auth}}
}

func (c *TickController) handleStepTick(w http.ResponseWriter, r *http.Request) {
	runTick(w, r, c.Steps, "step")
}

func (c *TickController) handleOutboxTick(w http.ResponseWriter, r *http.Request) {
	runTick(w, r, c.Outbox, "outbox")
}

func runTick(w http.ResponseWriter, r *http.Request, t Ticker, kind string) {
	processed, err := t.Tick(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Tick failed", "kind", kind, "processed", processed, "error", err)
		util.WriteError(w, http.StatusInternalServerError, kind+" tick failed")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.TickResponse{Processed: processed})
}
