package matcher

import (
	"strings"

	"github.com/turtacn/lupa/internal/intelligence/tokenizer"
	"github.com/turtacn/lupa/pkg/errors"
)

// CompileOptions selects the tokenizers used to turn literal text into token
// matchers and the ambient fuzzy-match default of the pattern's entity.
type CompileOptions struct {
	Exact      tokenizer.Tokenizer
	Fuzzy      tokenizer.Tokenizer
	FuzzyMatch bool
}

func (o CompileOptions) withDefaults() CompileOptions {
	if o.Exact == nil {
		o.Exact = tokenizer.NewStandard()
	}
	if o.Fuzzy == nil {
		o.Fuzzy = tokenizer.NewPhonetic()
	}
	return o
}

type scanState int

const (
	inText scanState = iota
	inGroup
	inModifiers
)

type group struct {
	alternatives []string
	fuzzy        bool
	cardinality  Cardinality
}

// Compile parses an expanded pattern into a matcher tree.
//
// A pattern is literal text interleaved with variation groups
// "(alt1|alt2|...)". A group may be followed by modifiers: '?' zero-or-one,
// '+' one-or-more, '*' zero-or-more and '~' which inverts the ambient fuzzy
// flag for the group's literal alternatives. Alternatives starting with '@'
// reference other entities. An unterminated or empty group is a syntax error.
func Compile(pattern string, opts CompileOptions) (Node, error) {
	opts = opts.withDefaults()
	c := &compiler{opts: opts, seq: &Sequence{}}

	state := inText
	var g group
	var buf strings.Builder

	openGroup := func() {
		c.flushText(buf.String())
		buf.Reset()
		g = group{fuzzy: opts.FuzzyMatch, cardinality: One}
		state = inGroup
	}

	for _, ch := range pattern {
		switch state {
		case inText:
			if ch == '(' {
				openGroup()
				continue
			}
			buf.WriteRune(ch)

		case inGroup:
			switch ch {
			case '|':
				g.alternatives = append(g.alternatives, buf.String())
				buf.Reset()
			case ')':
				if buf.Len() > 0 {
					g.alternatives = append(g.alternatives, buf.String())
				}
				if len(g.alternatives) == 0 {
					return nil, errors.New(errors.ErrCodePatternSyntax, "group has no alternatives").WithDetail(pattern)
				}
				buf.Reset()
				state = inModifiers
			default:
				buf.WriteRune(ch)
			}

		case inModifiers:
			switch ch {
			case '~':
				g.fuzzy = !opts.FuzzyMatch
			case '?':
				g.cardinality = ZeroOrOne
			case '+':
				g.cardinality = OneOrMore
			case '*':
				g.cardinality = ZeroOrMore
			default:
				c.finishGroup(g)
				state = inText
				if ch == '(' {
					openGroup()
				} else {
					buf.WriteRune(ch)
				}
			}
		}
	}

	switch state {
	case inGroup:
		return nil, errors.New(errors.ErrCodePatternSyntax, "closing paren not found").WithDetail(pattern)
	case inModifiers:
		c.finishGroup(g)
	}
	c.flushText(buf.String())
	return c.seq, nil
}

// MustCompile is Compile that panics on error. Intended for fixed patterns.
func MustCompile(pattern string, opts CompileOptions) Node {
	n, err := Compile(pattern, opts)
	if err != nil {
		panic(err)
	}
	return n
}

type compiler struct {
	opts CompileOptions
	seq  *Sequence
}

func (c *compiler) flushText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if n := c.text(text, c.opts.FuzzyMatch); n != nil {
		c.seq.Children = append(c.seq.Children, n)
	}
}

func (c *compiler) finishGroup(g group) {
	children := make([]Node, 0, len(g.alternatives))
	for _, alt := range g.alternatives {
		alt = strings.TrimSpace(alt)
		if strings.HasPrefix(alt, string(EntitySigil)) {
			children = append(children, &EntityRef{Name: strings.TrimSpace(alt[1:])})
			continue
		}
		n := c.text(alt, g.fuzzy)
		if n == nil {
			n = &Sequence{}
		}
		children = append(children, n)
	}
	c.seq.Children = append(c.seq.Children, &Alternation{Children: children, Cardinality: g.cardinality})
}

func (c *compiler) text(text string, fuzzy bool) Node {
	if fuzzy {
		return fuzzyText(text, c.opts.Fuzzy)
	}
	return exactText(text, c.opts.Exact)
}

func exactText(text string, tk tokenizer.Tokenizer) Node {
	tokens := tk.Tokenize(text)
	nodes := make([]Node, 0, len(tokens))
	for _, tok := range tokens {
		nodes = append(nodes, tokenNode(tok.Term, false))
	}
	return collapse(nodes)
}

func fuzzyText(text string, tk tokenizer.Tokenizer) Node {
	var nodes []Node
	var current []Node
	start := -1
	flush := func() {
		switch len(current) {
		case 0:
		case 1:
			nodes = append(nodes, current[0])
		default:
			nodes = append(nodes, &Alternation{Children: current, Cardinality: One})
		}
		current = nil
	}
	for _, tok := range tk.Tokenize(text) {
		if tok.Start != start {
			flush()
			start = tok.Start
		}
		current = append(current, tokenNode(tok.Term, true))
	}
	flush()
	return collapse(nodes)
}

func tokenNode(term string, fuzzy bool) Node {
	switch {
	case term == WildcardLiteral:
		return &Wildcard{}
	case fuzzy:
		return &Fuzzy{Code: term}
	default:
		return &Literal{Text: term}
	}
}

func collapse(nodes []Node) Node {
	switch len(nodes) {
	case 0:
		return nil
	case 1:
		return nodes[0]
	default:
		return &Sequence{Children: nodes}
	}
}
