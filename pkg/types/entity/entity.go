// Package entity defines the span-located, typed extraction results produced by
// the matching engine and shared by every transport (CLI, HTTP, Kafka).
package entity

import (
	"fmt"
	"sort"
	"strings"
)

// InternalPrefix marks entity types that are excluded from external results
// unless internal entities are explicitly requested.
const InternalPrefix = "^"

// TokenType is the internal type of raw token entities.
const TokenType = InternalPrefix + "token"

// BuiltinScore is the fixed confidence assigned to built-in recognizer results.
const BuiltinScore = 1.0

// Key is the identity of an entity occurrence. Two entities with the same key
// are the same occurrence regardless of resolution or children.
type Key struct {
	Type  string
	Start int
	End   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%d,%d)", k.Type, k.Start, k.End)
}

// Entity is a typed span of the source text.
type Entity struct {
	Type       string     `json:"type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Text       string     `json:"text"`
	Resolution Resolution `json:"resolution"`
	Children   []*Entity  `json:"children,omitempty"`
	Score      float64    `json:"score"`
}

// Key returns the identity of e.
func (e *Entity) Key() Key {
	return Key{Type: e.Type, Start: e.Start, End: e.End}
}

// Len returns the span length in bytes.
func (e *Entity) Len() int {
	return e.End - e.Start
}

// Internal reports whether e carries an internal type.
func (e *Entity) Internal() bool {
	return IsInternal(e.Type)
}

// Valid reports whether the span invariant End >= Start >= 0 holds.
func (e *Entity) Valid() bool {
	return e.Start >= 0 && e.End >= e.Start
}

// Descendants returns every child entity, depth first.
func (e *Entity) Descendants() []*Entity {
	var out []*Entity
	for _, child := range e.Children {
		out = append(out, child)
		out = append(out, child.Descendants()...)
	}
	return out
}

func (e *Entity) String() string {
	if e.Resolution.IsNone() {
		return fmt.Sprintf("%s [%d,%d]", e.Type, e.Start, e.End)
	}
	return fmt.Sprintf("%s [%d,%d] Resolution:%s", e.Type, e.Start, e.End, e.Resolution)
}

// TokenResolution is the structured resolution carried by token entities.
type TokenResolution struct {
	Token       string   `json:"token"`
	FuzzyTokens []string `json:"fuzzyTokens,omitempty"`
}

// TokenOf returns the token resolution of a token entity.
func TokenOf(e *Entity) (*TokenResolution, bool) {
	v, ok := e.Resolution.Value().(*TokenResolution)
	return v, ok
}

// IsInternal reports whether typ is an internal entity type.
func IsInternal(typ string) bool {
	return strings.HasPrefix(typ, InternalPrefix)
}

// SameType compares entity type names the way references resolve them.
func SameType(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Less orders a before b by start, then longer spans first, then type.
func Less(a, b *Entity) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.End != b.End {
		return a.End > b.End
	}
	return a.Type < b.Type
}

// Sort orders entities with Less.
func Sort(entities []*Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return Less(entities[i], entities[j])
	})
}
