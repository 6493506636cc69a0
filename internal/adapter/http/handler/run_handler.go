package handler

import (
	"settlement-reconciler/internal/core/ports"
	"settlement-reconciler/pkg/apperror"
	"settlement-reconciler/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RunHandler triggers reconciliation ticks on demand.
type RunHandler struct {
	runners map[string]ports.RailRunner
	log     zerolog.Logger
}

// NewRunHandler creates a RunHandler over the configured rail runners.
func NewRunHandler(runners []ports.RailRunner, log zerolog.Logger) *RunHandler {
	byRail := make(map[string]ports.RailRunner, len(runners))
	for _, r := range runners {
		byRail[r.Rail()] = r
	}
	return &RunHandler{runners: byRail, log: log}
}

// TriggerRun handles POST /api/v1/rails/:rail/runs. The tick runs synchronously
// and the summary is returned; a held tick lock is reported as lock_held.
func (h *RunHandler) TriggerRun(c *gin.Context) {
	rail := c.Param("rail")
	runner, ok := h.runners[rail]
	if !ok {
		response.Error(c, apperror.ErrUnknownRail(rail))
		return
	}

	summary, err := runner.RunOnce(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Str("rail", rail).Msg("manual run failed")
		response.Error(c, err)
		return
	}

	response.OK(c, summary)
}
