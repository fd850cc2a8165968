package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/lupa/internal/application/extraction"
	"github.com/turtacn/lupa/pkg/types/entity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	mu       sync.Mutex
	ready    bool
	err      error
	reloads  int
	inputs   []*extraction.MatchInput
	info     *extraction.ModelInfo
	warnings []string
	patterns []*extraction.PatternInfo
}

func newFakeService() *fakeService {
	return &fakeService{
		ready: true,
		info: &extraction.ModelInfo{
			Version:  "abc123",
			Source:   "file:model.json",
			Locale:   "en-US",
			Patterns: 2,
			Builtins: []string{"number"},
			Warnings: []string{},
		},
		warnings: []string{"entity vehicle: duplicate label"},
		patterns: []*extraction.PatternInfo{
			{Entity: "greeting", Source: "hello", Matcher: "literal"},
			{Entity: "color", Source: "red|blue", Matcher: "alternation"},
		},
	}
}

func (f *fakeService) Match(_ context.Context, in *extraction.MatchInput) (*extraction.MatchResult, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var ents []*entity.Entity
	if idx := strings.Index(in.Text, "hello"); idx >= 0 {
		ents = append(ents, &entity.Entity{Type: "greeting", Text: "hello", Start: idx, End: idx + 5})
	}
	if ents == nil {
		ents = []*entity.Entity{}
	}
	return &extraction.MatchResult{Entities: ents, ModelVersion: f.info.Version}, nil
}

func (f *fakeService) MatchBatch(ctx context.Context, inputs []*extraction.MatchInput) ([]*extraction.MatchResult, error) {
	out := make([]*extraction.MatchResult, len(inputs))
	for i, in := range inputs {
		res, err := f.Match(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

func (f *fakeService) Tokenize(_ context.Context, text string) ([]*entity.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*entity.Entity
	pos := 0
	for _, w := range strings.Fields(text) {
		i := strings.Index(text[pos:], w) + pos
		out = append(out, &entity.Entity{Type: "word", Text: w, Start: i, End: i + len(w)})
		pos = i + len(w)
	}
	return out, nil
}

func (f *fakeService) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return f.err
}

func (f *fakeService) Watch(ctx context.Context, _ string) error {
	<-ctx.Done()
	return nil
}

func (f *fakeService) Model() (*extraction.ModelInfo, error) {
	if !f.ready {
		return nil, extraction.ErrNoModel
	}
	return f.info, nil
}

func (f *fakeService) Warnings() ([]string, error) {
	if !f.ready {
		return nil, extraction.ErrNoModel
	}
	return f.warnings, nil
}

func (f *fakeService) Patterns() ([]*extraction.PatternInfo, error) {
	if !f.ready {
		return nil, extraction.ErrNoModel
	}
	return f.patterns, nil
}

func (f *fakeService) Ready() bool { return f.ready }
