package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imago-ai/imago"
	"github.com/imago-ai/imago/pkg/server/dto"
	"github.com/imago-ai/imago/pkg/store"
	"github.com/imago-ai/imago/pkg/types"
)

// AgentHandler serves the bi-temporal store operations.
type AgentHandler struct {
	client imago.Imago
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(client imago.Imago) *AgentHandler {
	return &AgentHandler{client: client}
}

// CreateSnapshot handles POST /agents/:agent_id/snapshots
func (h *AgentHandler) CreateSnapshot(c *gin.Context) {
	var req dto.SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	opts := &store.WriteOptions{ValidTo: req.ValidTo, ExpectedVersion: req.ExpectedVersion}
	if req.ValidFrom != nil {
		opts.ValidFrom = *req.ValidFrom
	}

	g, err := h.client.CreateSnapshot(c.Request.Context(), c.Param("agent_id"), dto.Statements(req.Statements), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// RecordCorrection handles POST /agents/:agent_id/corrections
func (h *AgentHandler) RecordCorrection(c *gin.Context) {
	var req dto.CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	opts := &store.WriteOptions{ValidTo: req.ValidTo}
	if req.ValidFrom != nil {
		opts.ValidFrom = *req.ValidFrom
	}

	g, err := h.client.RecordCorrection(c.Request.Context(), c.Param("agent_id"),
		dto.Statements(req.Statements), types.CorrectionType(req.CorrectionType), req.Reason, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// InsertLateArriving handles POST /agents/:agent_id/late-arriving
func (h *AgentHandler) InsertLateArriving(c *gin.Context) {
	var req dto.LateArrivingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	opts := &store.LateOptions{ValidTo: req.ValidTo}
	if req.DiscoveredAt != nil {
		opts.DiscoveredAt = *req.DiscoveredAt
	}

	graphs, err := h.client.InsertLateArriving(c.Request.Context(), c.Param("agent_id"),
		dto.Statements(req.Statements), req.ValidFrom, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, graphs)
}

// GetSnapshot handles GET /agents/:agent_id/snapshot
func (h *AgentHandler) GetSnapshot(c *gin.Context) {
	q := &store.SnapshotQuery{}
	if raw := c.Query("valid_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: "valid_at must be RFC3339"})
			return
		}
		q.ValidAt = &t
	}
	if raw := c.Query("recorded_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: "recorded_at must be RFC3339"})
			return
		}
		q.RecordedAt = &t
	}

	snap, err := h.client.GetSnapshot(c.Request.Context(), c.Param("agent_id"), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetHistory handles GET /agents/:agent_id/history
func (h *AgentHandler) GetHistory(c *gin.Context) {
	history, err := h.client.GetHistory(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var conflict *types.ConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, dto.ConflictResponse{
			Error:           "concurrent_modification_conflict",
			AgentID:         conflict.AgentID,
			ExpectedVersion: conflict.ExpectedVersion,
			ActualVersion:   conflict.ActualVersion,
			Ours:            conflict.Ours,
			Theirs:          conflict.Theirs,
		})
		return
	}

	var constraint *types.ConstraintError
	var ordering *types.OrderingError
	switch {
	case errors.As(err, &constraint), errors.As(err, &ordering),
		errors.Is(err, types.ErrEmptyAgentID), errors.Is(err, types.ErrNoStatements):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
	case errors.Is(err, types.ErrAgentNotFound), errors.Is(err, types.ErrGraphNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, types.ErrAdapterNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "adapter_not_found", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal_error", Message: err.Error()})
	}
}
