package controllers

import (
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/engine"
	"github.com/RealZimboGuy/leadflow/internal/util"
)

type ExecutorsController struct {
	AuthController
	ExecutorsRepo engine.ExecutorRepo
}

func NewExecutorsController(executorRepo engine.ExecutorRepo, auth KeyVerifier) *ExecutorsController {
	return &ExecutorsController{
		ExecutorsRepo:  executorRepo,
		AuthController: AuthController{Auth: auth},
	}
}

func (c *ExecutorsController) handleGetExecutors(w http.ResponseWriter, r *http.Request) {
	results, err := c.ExecutorsRepo.GetExecutorsByLastActive(20)
	if err != nil {
		slog.Error("Failed to search executors", "error", err)
		util.WriteError(w, http.StatusInternalServerError, "failed to search executors")
		return
	}
	if results == nil {
		results = []*domain.Executor{}
	}
	util.WriteJSONResponse(w, http.StatusOK, results)
}
