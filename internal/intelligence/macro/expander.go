// Package macro expands $name references inside raw pattern strings before
// they are compiled.
package macro

import (
	"fmt"
	"strings"
	"unicode"
)

// Sigil introduces a macro reference.
const Sigil = '$'

// Reference is one macro reference located in a pattern.
type Reference struct {
	Name  string // including the sigil
	Start int
	End   int
}

// Scan returns every macro reference in pattern, left to right. A reference is
// the sigil followed by a run of letters or digits.
func Scan(pattern string) []Reference {
	var refs []Reference
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != Sigil {
			continue
		}
		j := i + 1
		for j < len(pattern) {
			r, width := decode(pattern[j:])
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			j += width
		}
		if j > i+1 {
			refs = append(refs, Reference{Name: pattern[i:j], Start: i, End: j})
			i = j - 1
		}
	}
	return refs
}

func decode(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 1
}

// Lookup resolves a reference against the table. Keys may be written with or
// without the sigil.
func Lookup(macros map[string]string, name string) (string, bool) {
	if v, ok := macros[name]; ok {
		return v, true
	}
	v, ok := macros[strings.TrimPrefix(name, string(Sigil))]
	return v, ok
}

// UndefinedWarning formats the warning recorded for an unresolved reference.
func UndefinedWarning(name string) string {
	return fmt.Sprintf("WARNING: %s is not defined.", name)
}

// Expand substitutes every defined macro reference in pattern with its
// expansion text. Replacements are applied right to left so earlier offsets
// stay valid, and expansion text is never rescanned. Undefined references are
// left in place and reported as warnings in source order.
func Expand(pattern string, macros map[string]string) (string, []string) {
	refs := Scan(pattern)
	if len(refs) == 0 {
		return pattern, nil
	}

	var warnings []string
	type occurrence struct {
		ref   Reference
		value string
	}
	stack := make([]occurrence, 0, len(refs))
	for _, ref := range refs {
		value, ok := Lookup(macros, ref.Name)
		if !ok {
			warnings = append(warnings, UndefinedWarning(ref.Name))
			continue
		}
		stack = append(stack, occurrence{ref: ref, value: value})
	}

	for i := len(stack) - 1; i >= 0; i-- {
		o := stack[i]
		pattern = pattern[:o.ref.Start] + o.value + pattern[o.ref.End:]
	}
	return pattern, warnings
}
