package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/lupa/internal/application/extraction"
)

// ModelHandler exposes the active model.
type ModelHandler struct {
	svc extraction.Service
}

func NewModelHandler(svc extraction.Service) *ModelHandler {
	return &ModelHandler{svc: svc}
}

// WarningsResponse lists the model's normalization warnings.
type WarningsResponse struct {
	Warnings []string `json:"warnings"`
}

// PatternsResponse lists the compiled patterns.
type PatternsResponse struct {
	Patterns []*extraction.PatternInfo `json:"patterns"`
}

// Info handles GET /api/v1/model.
func (h *ModelHandler) Info(c *gin.Context) {
	info, err := h.svc.Model()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Warnings handles GET /api/v1/model/warnings.
func (h *ModelHandler) Warnings(c *gin.Context) {
	warnings, err := h.svc.Warnings()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, WarningsResponse{Warnings: warnings})
}

// Patterns handles GET /api/v1/model/patterns.
func (h *ModelHandler) Patterns(c *gin.Context) {
	patterns, err := h.svc.Patterns()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PatternsResponse{Patterns: patterns})
}

// Reload handles POST /api/v1/model/reload. A failed reload leaves the
// previous model serving and reports the error.
func (h *ModelHandler) Reload(c *gin.Context) {
	if err := h.svc.Reload(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.Info(c)
}
