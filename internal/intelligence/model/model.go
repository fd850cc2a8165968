// Package model holds the declarative entity definitions an engine is built
// from, and loads them from JSON or YAML documents.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/lupa/pkg/errors"
)

// DefaultLocale is used when a model does not declare one.
const DefaultLocale = "en"

// Format identifies the encoding of a model document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf derives the document format from a file name extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", errors.New(errors.ErrCodeModelInvalid, "unsupported model format").WithDetail(path)
}

// PatternGroup is one entry of a definition's pattern list. In a document it
// is either a single pattern string or an array of strings; an array makes
// the group normalized, so every pattern in it resolves to its first string.
type PatternGroup []string

// Normalized reports whether the group declares more than one pattern.
func (g PatternGroup) Normalized() bool { return len(g) > 1 }

// Canonical returns the first pattern of the group.
func (g PatternGroup) Canonical() string {
	if len(g) == 0 {
		return ""
	}
	return g[0]
}

func (g PatternGroup) MarshalJSON() ([]byte, error) {
	if len(g) == 1 {
		return json.Marshal(g[0])
	}
	return json.Marshal([]string(g))
}

func (g *PatternGroup) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*g = PatternGroup{strings.TrimSpace(single)}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("pattern must be a string or an array of strings: %w", err)
	}
	*g = trimAll(many)
	return nil
}

func (g PatternGroup) MarshalYAML() (any, error) {
	if len(g) == 1 {
		return g[0], nil
	}
	return []string(g), nil
}

func (g *PatternGroup) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*g = PatternGroup{strings.TrimSpace(node.Value)}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*g = trimAll(many)
		return nil
	}
	return fmt.Errorf("line %d: pattern must be a string or a list of strings", node.Line)
}

func trimAll(ss []string) PatternGroup {
	out := make(PatternGroup, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// Definition declares one named entity.
type Definition struct {
	Name       string         `json:"name" yaml:"name"`
	FuzzyMatch bool           `json:"fuzzyMatch,omitempty" yaml:"fuzzyMatch,omitempty"`
	Patterns   []PatternGroup `json:"patterns" yaml:"patterns"`
}

// Normalized reports whether any pattern group of the definition is
// normalized.
func (d *Definition) Normalized() bool {
	for _, g := range d.Patterns {
		if g.Normalized() {
			return true
		}
	}
	return false
}

// Model is a complete set of definitions plus the macro table and the names
// of entities supplied by callers at match time.
type Model struct {
	Locale           string            `json:"locale,omitempty" yaml:"locale,omitempty"`
	Entities         []Definition      `json:"entities" yaml:"entities"`
	Macros           map[string]string `json:"macros,omitempty" yaml:"macros,omitempty"`
	ExternalEntities []string          `json:"externalEntities,omitempty" yaml:"externalEntities,omitempty"`
}

// Load reads a model document from path. The format follows the extension.
func Load(path string) (*Model, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrCodeModelNotFound, "model file not found").WithDetail(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeModelSource, "read model file").WithDetail(path)
	}
	return Parse(data, format)
}

// Parse decodes a model document.
func Parse(data []byte, format Format) (*Model, error) {
	m := &Model{}
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, m)
	case FormatYAML:
		err = yaml.Unmarshal(data, m)
	default:
		return nil, errors.New(errors.ErrCodeModelInvalid, "unsupported model format").WithDetail(string(format))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelInvalid, "decode model")
	}
	return m, nil
}

// Marshal encodes the model in the given format.
func (m *Model) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(m, "", "  ")
	case FormatYAML:
		return yaml.Marshal(m)
	}
	return nil, errors.New(errors.ErrCodeModelInvalid, "unsupported model format").WithDetail(string(format))
}

// Validate checks the model structure and normalizes it in place. Entity
// names must be non-empty. Definitions sharing a name are merged into the
// first one with a warning. A missing locale defaults to DefaultLocale.
func (m *Model) Validate() ([]string, error) {
	if m.Locale == "" {
		m.Locale = DefaultLocale
	}
	var warnings []string
	merged := make([]Definition, 0, len(m.Entities))
	index := make(map[string]int, len(m.Entities))
	for i, def := range m.Entities {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return warnings, errors.New(errors.ErrCodeModelInvalid, "entity name is empty").
				WithDetail(fmt.Sprintf("entities[%d]", i))
		}
		def.Name = name
		if at, ok := index[strings.ToLower(name)]; ok {
			warnings = append(warnings, fmt.Sprintf("WARNING: entity %s is defined more than once; patterns merged.", name))
			merged[at].Patterns = append(merged[at].Patterns, def.Patterns...)
			merged[at].FuzzyMatch = merged[at].FuzzyMatch || def.FuzzyMatch
			continue
		}
		index[strings.ToLower(name)] = len(merged)
		def.Patterns = append([]PatternGroup(nil), def.Patterns...)
		merged = append(merged, def)
	}
	m.Entities = merged
	return warnings, nil
}

// Names returns the declared entity names in document order.
func (m *Model) Names() []string {
	out := make([]string, len(m.Entities))
	for i, def := range m.Entities {
		out[i] = def.Name
	}
	return out
}
