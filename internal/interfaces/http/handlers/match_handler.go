package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/lupa/internal/application/extraction"
	"github.com/turtacn/lupa/pkg/errors"
	"github.com/turtacn/lupa/pkg/types/entity"
)

// DefaultMaxBatchSize bounds POST /match/batch when none is configured.
const DefaultMaxBatchSize = 100

// MatchHandler serves entity extraction.
type MatchHandler struct {
	svc          extraction.Service
	maxBatchSize int
}

func NewMatchHandler(svc extraction.Service, maxBatchSize int) *MatchHandler {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &MatchHandler{svc: svc, maxBatchSize: maxBatchSize}
}

// BatchRequest is the body of POST /api/v1/match/batch.
type BatchRequest struct {
	Inputs []*extraction.MatchInput `json:"inputs"`
}

// BatchResponse pairs each input with its result, in input order.
type BatchResponse struct {
	Results []*extraction.MatchResult `json:"results"`
}

// TokenizeRequest is the body of POST /api/v1/tokenize.
type TokenizeRequest struct {
	Text string `json:"text"`
}

// TokenizeResponse lists the tokens of a text.
type TokenizeResponse struct {
	Tokens []*entity.Entity `json:"tokens"`
}

// Match handles POST /api/v1/match.
func (h *MatchHandler) Match(c *gin.Context) {
	var in extraction.MatchInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.Match(c.Request.Context(), &in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// MatchBatch handles POST /api/v1/match/batch.
func (h *MatchHandler) MatchBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.Inputs) == 0 {
		writeError(c, errors.New(errors.ErrCodeBadRequest, "inputs must not be empty"))
		return
	}
	if len(req.Inputs) > h.maxBatchSize {
		writeError(c, errors.Newf(errors.ErrCodeValidation, "batch of %d inputs exceeds limit %d", len(req.Inputs), h.maxBatchSize))
		return
	}
	results, err := h.svc.MatchBatch(c.Request.Context(), req.Inputs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, BatchResponse{Results: results})
}

// Tokenize handles POST /api/v1/tokenize.
func (h *MatchHandler) Tokenize(c *gin.Context) {
	var req TokenizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.svc.Tokenize(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenizeResponse{Tokens: tokens})
}
