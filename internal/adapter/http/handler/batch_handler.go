package handler

import (
	"strconv"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"
	"settlement-reconciler/pkg/apperror"
	"settlement-reconciler/pkg/response"

	"github.com/gin-gonic/gin"
)

// BatchHandler serves settlement batch lookups.
type BatchHandler struct {
	querySvc ports.BatchQueryService
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(querySvc ports.BatchQueryService) *BatchHandler {
	return &BatchHandler{querySvc: querySvc}
}

// BatchResponse is a batch together with its instructions.
type BatchResponse struct {
	Batch        *domain.SettlementBatch `json:"batch"`
	Instructions []domain.Instruction    `json:"instructions"`
}

// GetBatch handles GET /api/v1/batches/:id.
func (h *BatchHandler) GetBatch(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperror.Validation("batch id must be a positive integer"))
		return
	}

	batch, instructions, err := h.querySvc.GetBatch(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if instructions == nil {
		instructions = []domain.Instruction{}
	}

	response.OK(c, BatchResponse{Batch: batch, Instructions: instructions})
}
