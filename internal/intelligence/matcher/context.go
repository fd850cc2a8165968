package matcher

import (
	"sort"
	"strings"

	"github.com/turtacn/lupa/pkg/types/entity"
)

// Context is the mutable state of one match call. Tokens are fixed at
// construction. Entities grow through Stage and Commit only; matcher nodes see
// committed entities, so a sweep never observes its own additions.
type Context struct {
	Text   string
	Tokens []*entity.Entity

	terms    []*entity.TokenResolution
	entities []*entity.Entity
	keys     map[entity.Key]struct{}
	byType   map[string][]*entity.Entity
	staged   []*entity.Entity
	stagedAt map[entity.Key]struct{}
}

// NewContext builds a context over text and its token entities. Tokens must
// be ordered by Start and carry a *entity.TokenResolution.
func NewContext(text string, tokens []*entity.Entity) *Context {
	ctx := &Context{
		Text:     text,
		Tokens:   tokens,
		terms:    make([]*entity.TokenResolution, len(tokens)),
		keys:     make(map[entity.Key]struct{}),
		byType:   make(map[string][]*entity.Entity),
		stagedAt: make(map[entity.Key]struct{}),
	}
	for i, tok := range tokens {
		tr, ok := entity.TokenOf(tok)
		if !ok {
			tr = &entity.TokenResolution{Token: strings.ToLower(tok.Text)}
		}
		ctx.terms[i] = tr
	}
	return ctx
}

// TokenAt returns the index of the first token starting at or after pos.
func (c *Context) TokenAt(pos int) (int, bool) {
	idx := sort.Search(len(c.Tokens), func(i int) bool {
		return c.Tokens[i].Start >= pos
	})
	return idx, idx < len(c.Tokens)
}

// Add commits e immediately if its key is not present yet.
func (c *Context) Add(e *entity.Entity) bool {
	k := e.Key()
	if _, ok := c.keys[k]; ok {
		return false
	}
	c.keys[k] = struct{}{}
	c.entities = append(c.entities, e)
	typ := strings.ToLower(e.Type)
	c.byType[typ] = append(c.byType[typ], e)
	return true
}

// Has reports whether an entity with key k is committed or staged.
func (c *Context) Has(k entity.Key) bool {
	if _, ok := c.keys[k]; ok {
		return true
	}
	_, ok := c.stagedAt[k]
	return ok
}

// Stage queues e for the next Commit unless its key is already known.
func (c *Context) Stage(e *entity.Entity) bool {
	k := e.Key()
	if c.Has(k) {
		return false
	}
	c.stagedAt[k] = struct{}{}
	c.staged = append(c.staged, e)
	return true
}

// Commit merges staged entities and returns how many were added.
func (c *Context) Commit() int {
	added := 0
	for _, e := range c.staged {
		if c.Add(e) {
			added++
		}
	}
	c.staged = c.staged[:0]
	c.stagedAt = make(map[entity.Key]struct{})
	return added
}

// Len returns the number of committed entities.
func (c *Context) Len() int { return len(c.entities) }

// Entities returns a copy of the committed entities in insertion order.
func (c *Context) Entities() []*entity.Entity {
	out := make([]*entity.Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// OfType returns committed entities of typ, case-insensitively, in insertion
// order. The slice must not be modified.
func (c *Context) OfType(typ string) []*entity.Entity {
	return c.byType[strings.ToLower(typ)]
}

// Attempt is the scratch record of applying one pattern at one position. It
// lives on the caller's stack and is discarded when the attempt fails.
type Attempt struct {
	Pattern  *EntityPattern
	Start    int
	Children []*entity.Entity
}

// NewAttempt starts an attempt of p at start.
func NewAttempt(p *EntityPattern, start int) *Attempt {
	return &Attempt{Pattern: p, Start: start}
}

func (a *Attempt) rollback(mark int) {
	for i := mark; i < len(a.Children); i++ {
		a.Children[i] = nil
	}
	a.Children = a.Children[:mark]
}

// Apply runs p at start and builds the resulting entity. It returns nil when
// the pattern fails, consumes nothing or ends past the text. A pattern without a fixed resolution
// and without children resolves to the matched text.
func Apply(ctx *Context, p *EntityPattern, start int) *entity.Entity {
	at := NewAttempt(p, start)
	r := p.Matcher.Match(ctx, at, start)
	if !r.Matched || r.NextStart <= start || r.NextStart > len(ctx.Text) {
		return nil
	}
	e := &entity.Entity{
		Type:       p.Name,
		Start:      start,
		End:        r.NextStart,
		Text:       ctx.Text[start:r.NextStart],
		Resolution: p.Resolution,
	}
	if len(at.Children) > 0 {
		e.Children = append([]*entity.Entity(nil), at.Children...)
	}
	if e.Resolution.IsNone() && len(e.Children) == 0 {
		e.Resolution = entity.RawSpan(e.Text)
	}
	return e
}
