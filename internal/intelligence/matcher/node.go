// Package matcher holds the compiled form of entity patterns: a closed set of
// matcher tree nodes evaluated against the tokens of one utterance.
package matcher

import (
	"strings"

	"github.com/turtacn/lupa/pkg/types/entity"
)

// WildcardLiteral is the pattern token that matches any single token.
const WildcardLiteral = "___"

// EntitySigil introduces an entity reference inside a variation group.
const EntitySigil = '@'

// Result reports whether a node matched and where matching continues.
type Result struct {
	Matched   bool
	NextStart int
}

func matched(next int) Result { return Result{Matched: true, NextStart: next} }

var noMatch = Result{}

// Node is one matcher tree node. The set of implementations is closed to this
// package: Sequence, Alternation, Literal, Fuzzy, EntityRef and Wildcard.
type Node interface {
	// Match evaluates the node at character offset start.
	Match(ctx *Context, at *Attempt, start int) Result
	String() string
	node()
}

// Cardinality selects how many times an Alternation must match.
type Cardinality int

const (
	One Cardinality = iota
	ZeroOrOne
	OneOrMore
	ZeroOrMore
)

func (c Cardinality) suffix() string {
	switch c {
	case ZeroOrOne:
		return "?"
	case OneOrMore:
		return "+"
	case ZeroOrMore:
		return "*"
	default:
		return ""
	}
}

// Literal matches one token whose exact form equals Text, ignoring case.
type Literal struct {
	Text string
}

func (*Literal) node() {}

func (n *Literal) Match(ctx *Context, _ *Attempt, start int) Result {
	idx, ok := ctx.TokenAt(start)
	if !ok || !strings.EqualFold(ctx.terms[idx].Token, n.Text) {
		return noMatch
	}
	return matched(ctx.Tokens[idx].End)
}

func (n *Literal) String() string { return n.Text }

// Fuzzy matches one token carrying the phonetic Code.
type Fuzzy struct {
	Code string
}

func (*Fuzzy) node() {}

func (n *Fuzzy) Match(ctx *Context, _ *Attempt, start int) Result {
	idx, ok := ctx.TokenAt(start)
	if !ok {
		return noMatch
	}
	for _, code := range ctx.terms[idx].FuzzyTokens {
		if code == n.Code {
			return matched(ctx.Tokens[idx].End)
		}
	}
	return noMatch
}

func (n *Fuzzy) String() string { return "~" + n.Code }

// EntityRef matches a previously recognized entity of type Name beginning at
// the current position. The entity becomes a child of the attempt.
type EntityRef struct {
	Name string
}

func (*EntityRef) node() {}

func (n *EntityRef) Match(ctx *Context, at *Attempt, start int) Result {
	limit := len(ctx.Text)
	if idx, ok := ctx.TokenAt(start); ok {
		limit = ctx.Tokens[idx].Start
	}
	for _, e := range ctx.OfType(n.Name) {
		if e.Start >= start && e.Start <= limit {
			at.Children = append(at.Children, e)
			return matched(e.End)
		}
	}
	return noMatch
}

func (n *EntityRef) String() string { return string(EntitySigil) + n.Name }

// Wildcard matches any single token.
type Wildcard struct{}

func (*Wildcard) node() {}

func (n *Wildcard) Match(ctx *Context, _ *Attempt, start int) Result {
	idx, ok := ctx.TokenAt(start)
	if !ok {
		return noMatch
	}
	return matched(ctx.Tokens[idx].End)
}

func (n *Wildcard) String() string { return WildcardLiteral }

// Sequence matches every child consecutively.
type Sequence struct {
	Children []Node
}

func (*Sequence) node() {}

func (n *Sequence) Match(ctx *Context, at *Attempt, start int) Result {
	mark := len(at.Children)
	pos := start
	for _, child := range n.Children {
		r := child.Match(ctx, at, pos)
		if !r.Matched {
			at.rollback(mark)
			return noMatch
		}
		pos = r.NextStart
	}
	return matched(pos)
}

func (n *Sequence) String() string {
	parts := make([]string, len(n.Children))
	for i, child := range n.Children {
		parts[i] = child.String()
	}
	return strings.Join(parts, " ")
}

// Alternation tries its children in order; the first that matches wins.
// Cardinality controls repetition of the whole group.
type Alternation struct {
	Children    []Node
	Cardinality Cardinality
}

func (*Alternation) node() {}

func (n *Alternation) once(ctx *Context, at *Attempt, start int) Result {
	for _, child := range n.Children {
		if r := child.Match(ctx, at, start); r.Matched {
			return r
		}
	}
	return noMatch
}

func (n *Alternation) Match(ctx *Context, at *Attempt, start int) Result {
	switch n.Cardinality {
	case ZeroOrOne:
		if r := n.once(ctx, at, start); r.Matched {
			return r
		}
		return matched(start)
	case OneOrMore, ZeroOrMore:
		pos, count := start, 0
		for {
			mark := len(at.Children)
			r := n.once(ctx, at, pos)
			if !r.Matched || r.NextStart <= pos {
				at.rollback(mark)
				break
			}
			pos = r.NextStart
			count++
		}
		if n.Cardinality == OneOrMore && count == 0 {
			return noMatch
		}
		return matched(pos)
	default:
		return n.once(ctx, at, start)
	}
}

func (n *Alternation) String() string {
	parts := make([]string, len(n.Children))
	for i, child := range n.Children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, "|") + ")" + n.Cardinality.suffix()
}

// Walk visits n and its descendants depth first.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch v := n.(type) {
	case *Sequence:
		for _, child := range v.Children {
			Walk(child, fn)
		}
	case *Alternation:
		for _, child := range v.Children {
			Walk(child, fn)
		}
	case *Literal, *Fuzzy, *EntityRef, *Wildcard:
	}
}

// References returns the entity names referenced by n, in pattern order.
func References(n Node) []string {
	var refs []string
	Walk(n, func(node Node) {
		if ref, ok := node.(*EntityRef); ok {
			refs = append(refs, ref.Name)
		}
	})
	return refs
}

// HasWildcard reports whether n contains a Wildcard node.
func HasWildcard(n Node) bool {
	found := false
	Walk(n, func(node Node) {
		if _, ok := node.(*Wildcard); ok {
			found = true
		}
	})
	return found
}

// EntityPattern is one compiled pattern of a named entity. It is immutable
// after construction and shared by every match call.
type EntityPattern struct {
	Name       string
	Resolution entity.Resolution
	Matcher    Node
	Source     string
}

func (p *EntityPattern) String() string {
	return p.Name + " => " + p.Matcher.String()
}
