package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imago-ai/imago"
	"github.com/imago-ai/imago/pkg/server/dto"
	"github.com/imago-ai/imago/pkg/types"
)

// TranslateHandler serves the bridge operations.
type TranslateHandler struct {
	client imago.Imago
}

// NewTranslateHandler creates a new translate handler
func NewTranslateHandler(client imago.Imago) *TranslateHandler {
	return &TranslateHandler{client: client}
}

// Translate handles POST /translate
func (h *TranslateHandler) Translate(c *gin.Context) {
	var req dto.TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	result, err := h.client.Translate(c.Request.Context(), req.Native,
		types.Framework(req.Source), types.Framework(req.Target))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Morph handles POST /agents/:agent_id/morph
func (h *TranslateHandler) Morph(c *gin.Context) {
	var req dto.MorphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	g, err := h.client.Morph(c.Request.Context(), c.Param("agent_id"), req.Native, types.Framework(req.Source))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// Validate handles POST /validate
func (h *TranslateHandler) Validate(c *gin.Context) {
	var req dto.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	result, err := h.client.Validate(c.Request.Context(), req.Native, types.Framework(req.Framework))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CompatibilityMatrix handles GET /compatibility
func (h *TranslateHandler) CompatibilityMatrix(c *gin.Context) {
	c.JSON(http.StatusOK, h.client.CompatibilityMatrix())
}

// ResolveSpecification handles GET /specifications/:protocol
func (h *TranslateHandler) ResolveSpecification(c *gin.Context) {
	res, err := h.client.ResolveSpecification(c.Request.Context(), c.Param("protocol"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
