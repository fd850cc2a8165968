package client

import (
	"context"
	"time"

	"github.com/turtacn/lupa/pkg/errors"
	"github.com/turtacn/lupa/pkg/types/entity"
)

type MatchRequest struct {
	Text            string           `json:"text"`
	Locale          string           `json:"locale,omitempty"`
	IncludeInternal bool             `json:"include_internal,omitempty"`
	External        []*entity.Entity `json:"external,omitempty"`
}

type MatchResult struct {
	Entities     []*entity.Entity `json:"entities"`
	ModelVersion string           `json:"model_version"`
	Cached       bool             `json:"cached"`
}

type ModelInfo struct {
	Version  string    `json:"version"`
	Source   string    `json:"source"`
	Locale   string    `json:"locale"`
	Patterns int       `json:"patterns"`
	Builtins []string  `json:"builtins"`
	Warnings []string  `json:"warnings"`
	LoadedAt time.Time `json:"loaded_at"`
}

type PatternInfo struct {
	Entity  string `json:"entity"`
	Source  string `json:"source"`
	Matcher string `json:"matcher"`
}

// Health is the readiness report of the server.
type Health struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Match extracts the entities of one text with the server's active model.
func (c *Client) Match(ctx context.Context, req *MatchRequest) (*MatchResult, error) {
	if req == nil {
		return nil, errors.New(errors.ErrCodeBadRequest, "match request is nil")
	}
	var out MatchResult
	if err := c.post(ctx, "/api/v1/match", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MatchBatch matches several texts in one call. Results keep input order.
func (c *Client) MatchBatch(ctx context.Context, reqs []*MatchRequest) ([]*MatchResult, error) {
	if len(reqs) == 0 {
		return nil, errors.New(errors.ErrCodeBadRequest, "batch is empty")
	}
	body := struct {
		Inputs []*MatchRequest `json:"inputs"`
	}{Inputs: reqs}
	var out struct {
		Results []*MatchResult `json:"results"`
	}
	if err := c.post(ctx, "/api/v1/match/batch", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Tokenize returns the token entities the server derives from text.
func (c *Client) Tokenize(ctx context.Context, text string) ([]*entity.Entity, error) {
	body := struct {
		Text string `json:"text"`
	}{Text: text}
	var out struct {
		Tokens []*entity.Entity `json:"tokens"`
	}
	if err := c.post(ctx, "/api/v1/tokenize", body, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

func (c *Client) Model(ctx context.Context) (*ModelInfo, error) {
	var out ModelInfo
	if err := c.get(ctx, "/api/v1/model", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Warnings(ctx context.Context) ([]string, error) {
	var out struct {
		Warnings []string `json:"warnings"`
	}
	if err := c.get(ctx, "/api/v1/model/warnings", &out); err != nil {
		return nil, err
	}
	return out.Warnings, nil
}

func (c *Client) Patterns(ctx context.Context) ([]*PatternInfo, error) {
	var out struct {
		Patterns []*PatternInfo `json:"patterns"`
	}
	if err := c.get(ctx, "/api/v1/model/patterns", &out); err != nil {
		return nil, err
	}
	return out.Patterns, nil
}

// Reload asks the server to reload its model and returns the new model.
func (c *Client) Reload(ctx context.Context) (*ModelInfo, error) {
	var out ModelInfo
	if err := c.post(ctx, "/api/v1/model/reload", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready reports the server's readiness. A not-ready server yields an
// *APIError with status 503.
func (c *Client) Ready(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.get(ctx, "/readyz", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
