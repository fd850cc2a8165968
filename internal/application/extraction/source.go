package extraction

import (
	"context"

	"github.com/turtacn/lupa/internal/intelligence/model"
)

// Source names accepted by the engine.model_source configuration key.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceMinIO    = "minio"
)

// ModelSource yields the current model document.
type ModelSource interface {
	Name() string
	Load(ctx context.Context) (*model.Model, error)
}

// FileSource reads a JSON or YAML model file from local disk.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return SourceFile }

func (s FileSource) Load(ctx context.Context) (*model.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return model.Load(s.Path)
}

type funcSource struct {
	name string
	load func(ctx context.Context) (*model.Model, error)
}

// NewSourceFunc adapts a load function, typically a repository lookup, into
// a ModelSource.
func NewSourceFunc(name string, load func(ctx context.Context) (*model.Model, error)) ModelSource {
	return &funcSource{name: name, load: load}
}

func (s *funcSource) Name() string { return s.name }

func (s *funcSource) Load(ctx context.Context) (*model.Model, error) { return s.load(ctx) }

// StaticSource serves a model built in memory.
func StaticSource(m *model.Model) ModelSource {
	return NewSourceFunc("static", func(context.Context) (*model.Model, error) { return m, nil })
}
