package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/lupa/internal/intelligence/model"
)

// GreetingModel returns a small model with a greeting entity, a color macro
// and a composed phrase entity.
func GreetingModel() *model.Model {
	return &model.Model{
		Locale: "en",
		Macros: map[string]string{"$color": "(red|green|blue)"},
		Entities: []model.Definition{
			{Name: "greeting", Patterns: []model.PatternGroup{{"(hi|hello) (there)?"}}},
			{Name: "color", Patterns: []model.PatternGroup{{"$color"}}},
			{Name: "vehicle", Patterns: []model.PatternGroup{{"(car|truck)"}}},
			{Name: "ride", Patterns: []model.PatternGroup{{"(@color) (@vehicle)"}}},
		},
	}
}

// WriteModel writes m into dir under name and returns the path. The format
// follows the extension of name.
func WriteModel(t *testing.T, dir, name string, m *model.Model) string {
	t.Helper()
	format, err := model.FormatOf(name)
	require.NoError(t, err)
	data, err := m.Marshal(format)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
