package tokenizer

import (
	"github.com/antzucaro/matchr"
)

// DefaultCodeLength matches the code length used for fuzzy matching. Double
// Metaphone itself stops at four characters.
const DefaultCodeLength = 6

// Phonetic wraps a word tokenizer and emits the sound codes of every word in
// place of the word. Tokens whose code is empty (numbers, symbols) keep their
// term so they still compare exactly.
type Phonetic struct {
	Base    Tokenizer
	MaxLen  int
	Encoder func(word string, maxLen int) []string
}

// NewPhonetic returns a phonetic tokenizer over the standard word tokenizer
// using Double Metaphone codes.
func NewPhonetic() *Phonetic {
	return &Phonetic{Base: NewStandard(), MaxLen: DefaultCodeLength, Encoder: DoubleMetaphoneCodes}
}

// Tokenize implements Tokenizer. Codes of one word share its offsets.
func (p *Phonetic) Tokenize(text string) []Token {
	base := p.Base
	if base == nil {
		base = NewStandard()
	}
	encode := p.Encoder
	if encode == nil {
		encode = DoubleMetaphoneCodes
	}
	maxLen := p.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultCodeLength
	}

	var out []Token
	for _, tok := range base.Tokenize(text) {
		codes := encode(tok.Term, maxLen)
		if len(codes) == 0 {
			out = append(out, tok)
			continue
		}
		for _, code := range codes {
			out = append(out, Token{Term: code, Start: tok.Start, End: tok.End})
		}
	}
	return out
}

// Codes returns the phonetic codes of a single term.
func (p *Phonetic) Codes(term string) []string {
	var codes []string
	for _, tok := range p.Tokenize(term) {
		codes = append(codes, tok.Term)
	}
	return codes
}

// DoubleMetaphoneCodes returns the distinct primary and alternate Double
// Metaphone codes of word, each cut to maxLen. A word with no letters has no
// codes.
func DoubleMetaphoneCodes(word string, maxLen int) []string {
	primary, alternate := matchr.DoubleMetaphone(word)
	var codes []string
	for _, code := range []string{primary, alternate} {
		if maxLen > 0 && len(code) > maxLen {
			code = code[:maxLen]
		}
		if code == "" || (len(codes) == 1 && codes[0] == code) {
			continue
		}
		codes = append(codes, code)
	}
	return codes
}
