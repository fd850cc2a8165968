// Package tokenizer splits utterances and pattern text into offset-carrying
// tokens. The matching engine treats both tokenizers as pluggable services:
// the exact tokenizer decides token boundaries and comparison forms, the
// phonetic tokenizer maps each token to approximate sound codes.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Token is one term with its byte offsets in the source text.
type Token struct {
	Term  string
	Start int
	End   int
}

// Tokenizer produces tokens in source order. Tokens sharing a Start offset are
// alternative forms of the same position.
type Tokenizer interface {
	Tokenize(text string) []Token
}

// Func adapts a plain function to Tokenizer.
type Func func(text string) []Token

// Tokenize implements Tokenizer.
func (f Func) Tokenize(text string) []Token { return f(text) }

// Sigils that stay attached to the word they prefix.
const (
	EntitySigil = '@'
	MacroSigil  = '$'
)

// HasSigil reports whether term starts with an entity or macro sigil.
func HasSigil(term string) bool {
	return term != "" && (term[0] == EntitySigil || term[0] == MacroSigil)
}

// Standard is a word tokenizer modeled on a search-engine standard analyzer
// without stop words. Words are runs of letters, digits, marks and
// underscores. Apostrophes between letters and '.' or ',' between digits stay
// inside the word. Terms are NFKC-normalized and case-folded.
type Standard struct {
	// Elisions lists articles ("l", "d") stripped when they precede an
	// apostrophe at the start of a word.
	Elisions map[string]bool
}

// NewStandard returns a Standard tokenizer without elision handling.
func NewStandard() *Standard {
	return &Standard{}
}

var folder = cases.Fold()

// Normalize returns the comparison form of a raw term.
func Normalize(raw string) string {
	return folder.String(norm.NFKC.String(raw))
}

// Tokenize implements Tokenizer.
func (s *Standard) Tokenize(text string) []Token {
	var tokens []Token
	runes := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for i, r := range text {
		runes = append(runes, r)
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))

	i := 0
	for i < len(runes) {
		if !isWordRune(runes[i]) {
			i++
			continue
		}
		start := i
		for i < len(runes) {
			r := runes[i]
			if isWordRune(r) {
				i++
				continue
			}
			if i+1 < len(runes) && i > start && isJoiner(runes[i-1], r, runes[i+1]) {
				i += 2
				continue
			}
			break
		}
		if start > 0 && (runes[start-1] == EntitySigil || runes[start-1] == MacroSigil) &&
			(start == 1 || !isWordRune(runes[start-2])) {
			start--
		}
		tok := Token{
			Term:  Normalize(string(runes[start:i])),
			Start: offsets[start],
			End:   offsets[i],
		}
		tokens = append(tokens, s.elide(tok, text))
	}
	return tokens
}

func (s *Standard) elide(tok Token, text string) Token {
	if len(s.Elisions) == 0 {
		return tok
	}
	idx := strings.IndexAny(tok.Term, "'’")
	if idx <= 0 || idx == len(tok.Term)-1 {
		return tok
	}
	if !s.Elisions[tok.Term[:idx]] {
		return tok
	}
	raw := text[tok.Start:tok.End]
	rawIdx := strings.IndexAny(raw, "'’")
	if rawIdx < 0 {
		return tok
	}
	_, width := firstRune(raw[rawIdx:])
	return Token{
		Term:  Normalize(raw[rawIdx+width:]),
		Start: tok.Start + rawIdx + width,
		End:   tok.End,
	}
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 0
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '_'
}

func isJoiner(prev, r, next rune) bool {
	switch r {
	case '\'', '’':
		return unicode.IsLetter(prev) && unicode.IsLetter(next)
	case '.', ',':
		return unicode.IsDigit(prev) && unicode.IsDigit(next)
	}
	return false
}

var elisionArticles = map[string]map[string]bool{
	"fr": {"l": true, "m": true, "t": true, "qu": true, "n": true, "s": true, "j": true, "d": true, "c": true, "jusqu": true, "quoiqu": true, "lorsqu": true, "puisqu": true},
	"it": {"c": true, "l": true, "all": true, "dall": true, "dell": true, "nell": true, "sull": true, "coll": true, "pell": true, "gl": true, "agl": true, "dagl": true, "degl": true, "negl": true, "sugl": true, "un": true, "m": true, "t": true, "s": true, "v": true, "d": true},
	"ca": {"d": true, "l": true, "m": true, "n": true, "s": true, "t": true},
	"ga": {"d": true, "m": true, "b": true},
}

// ForLocale returns the exact tokenizer for a locale tag such as "en-us" or
// "fr". Locales with article elision strip the article from elided words.
func ForLocale(locale string) Tokenizer {
	lang := strings.ToLower(locale)
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	if articles, ok := elisionArticles[lang]; ok {
		return &Standard{Elisions: articles}
	}
	return NewStandard()
}
