package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind enumerates the variants of Resolution.
type Kind int

const (
	// KindNone carries no value.
	KindNone Kind = iota
	// KindRawSpan carries a text value, usually the matched substring or a
	// normalized synonym.
	KindRawSpan
	// KindStructured carries an opaque value such as a built-in recognizer
	// resolution or a TokenResolution.
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindRawSpan:
		return "raw"
	case KindStructured:
		return "structured"
	default:
		return "none"
	}
}

// Resolution is the resolved value of an entity. The zero value is None.
type Resolution struct {
	kind  Kind
	text  string
	value any
}

// None returns the empty resolution.
func None() Resolution { return Resolution{} }

// RawSpan returns a text resolution.
func RawSpan(s string) Resolution { return Resolution{kind: KindRawSpan, text: s} }

// Structured returns an opaque resolution. A nil value yields None.
func Structured(v any) Resolution {
	if v == nil {
		return Resolution{}
	}
	return Resolution{kind: KindStructured, value: v}
}

// Kind returns the variant of r.
func (r Resolution) Kind() Kind { return r.kind }

// IsNone reports whether r carries no value.
func (r Resolution) IsNone() bool { return r.kind == KindNone }

// Text returns the raw span text and whether r is a RawSpan.
func (r Resolution) Text() (string, bool) {
	return r.text, r.kind == KindRawSpan
}

// Value returns the underlying value: a string for RawSpan, the opaque value
// for Structured and nil for None.
func (r Resolution) Value() any {
	switch r.kind {
	case KindRawSpan:
		return r.text
	case KindStructured:
		return r.value
	default:
		return nil
	}
}

func (r Resolution) String() string {
	switch r.kind {
	case KindRawSpan:
		return fmt.Sprintf("%q", r.text)
	case KindStructured:
		b, err := json.Marshal(r.value)
		if err != nil {
			return fmt.Sprintf("%v", r.value)
		}
		return string(b)
	default:
		return "null"
	}
}

// MarshalJSON encodes None as null, RawSpan as a string and Structured as the
// JSON form of its value.
func (r Resolution) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case KindRawSpan:
		return json.Marshal(r.text)
	case KindStructured:
		return json.Marshal(r.value)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes null to None, a JSON string to RawSpan and anything
// else to Structured holding the generic decoded value.
func (r *Resolution) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = None()
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*r = RawSpan(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*r = Structured(v)
	return nil
}
