// Package engine compiles a model into entity patterns and runs them against
// utterances. Matching is a fixed-point loop: every sweep tries every pattern
// at every token start, and sweeps repeat while they add entities, so
// definitions may reference each other in any order.
package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/intelligence/builtin"
	"github.com/turtacn/lupa/internal/intelligence/macro"
	"github.com/turtacn/lupa/internal/intelligence/matcher"
	"github.com/turtacn/lupa/internal/intelligence/model"
	"github.com/turtacn/lupa/internal/intelligence/tokenizer"
	"github.com/turtacn/lupa/pkg/errors"
	"github.com/turtacn/lupa/pkg/types/entity"
)

// DateTimeEntity is the name of the pattern every engine carries that unifies
// the datetime sub-kinds.
const DateTimeEntity = "datetime"

// WildcardEntity is accepted as a reference name without a definition.
const WildcardEntity = "wildcard"

var defaultDateTimePattern = "(@" + strings.Join(builtin.DateTimeKinds, "|@") + ")"

// MatchOptions tunes one Match call.
type MatchOptions struct {
	// Locale is passed to built-in recognizers. Defaults to the model locale.
	Locale string
	// External entities seed the entity set before matching.
	External []*entity.Entity
	// IncludeInternal returns token and internal entities, unresolved.
	IncludeInternal bool
}

// Stats describes one completed Match call.
type Stats struct {
	Tokens   int
	Sweeps   int
	Entities int
	Duration time.Duration
}

// Observer receives the stats of every successful Match call.
type Observer interface {
	ObserveMatch(Stats)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenizer replaces the locale's exact tokenizer.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(e *Engine) { e.exact = t }
}

// WithFuzzyTokenizer replaces the phonetic tokenizer.
func WithFuzzyTokenizer(t tokenizer.Tokenizer) Option {
	return func(e *Engine) { e.fuzzy = t }
}

// WithRecognizer replaces the built-in recognizer.
func WithRecognizer(r builtin.Recognizer) Option {
	return func(e *Engine) { e.recognizer = r }
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers an observer for match stats.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// UseAllBuiltins runs every built-in recognizer on each call instead of only
// the kinds referenced by patterns.
func UseAllBuiltins() Option {
	return func(e *Engine) { e.allBuiltins = true }
}

// Engine is a compiled model. It is immutable after New and safe for
// concurrent Match calls.
type Engine struct {
	locale     string
	patterns   []*matcher.EntityPattern
	wildcards  []*matcher.EntityPattern
	builtins   []string
	external   []string
	warnings   []string
	exact      tokenizer.Tokenizer
	fuzzy      tokenizer.Tokenizer
	recognizer builtin.Recognizer
	logger     logging.Logger
	observer   Observer

	allBuiltins bool
}

// New validates and compiles m. It fails on the first pattern syntax error.
// The model is not modified.
func New(m *model.Model, opts ...Option) (*Engine, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeModelInvalid, "model is nil")
	}
	mc := *m
	mc.Entities = append([]model.Definition(nil), m.Entities...)
	validation, err := mc.Validate()
	if err != nil {
		return nil, err
	}

	e := &Engine{locale: mc.Locale, external: append([]string(nil), mc.ExternalEntities...)}
	for _, opt := range opts {
		opt(e)
	}
	if e.exact == nil {
		e.exact = tokenizer.ForLocale(e.locale)
	}
	if e.fuzzy == nil {
		e.fuzzy = &tokenizer.Phonetic{Base: e.exact, MaxLen: tokenizer.DefaultCodeLength, Encoder: tokenizer.DoubleMetaphoneCodes}
	}
	if e.recognizer == nil {
		e.recognizer = builtin.NewDefault()
	}
	if e.logger == nil {
		e.logger = logging.NewNopLogger()
	}
	e.logger = e.logger.Named("engine")

	if err := e.compile(&mc); err != nil {
		return nil, err
	}
	e.warnings = append(e.warnings, validation...)
	e.detectBuiltins()
	e.warnings = append(e.warnings, e.validateReferences()...)

	e.logger.Debug("model compiled",
		logging.String("locale", e.locale),
		logging.Int("patterns", len(e.patterns)),
		logging.Int("wildcard_patterns", len(e.wildcards)),
		logging.Any("builtins", e.builtins),
		logging.Int("warnings", len(e.warnings)),
	)
	return e, nil
}

func (e *Engine) compile(m *model.Model) error {
	for _, def := range m.Entities {
		opts := matcher.CompileOptions{Exact: e.exact, Fuzzy: e.fuzzy, FuzzyMatch: def.FuzzyMatch}
		normalized := def.Normalized()
		for _, group := range def.Patterns {
			res := entity.None()
			if normalized {
				res = entity.RawSpan(group.Canonical())
			}
			for _, source := range group {
				expanded, warnings := macro.Expand(source, m.Macros)
				e.warnings = append(e.warnings, warnings...)
				node, err := matcher.Compile(expanded, opts)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodePatternSyntax, "compile pattern").
						WithDetail(def.Name + ": " + source)
				}
				p := &matcher.EntityPattern{Name: def.Name, Resolution: res, Matcher: node, Source: source}
				if strings.Contains(expanded, matcher.WildcardLiteral) {
					e.wildcards = append(e.wildcards, p)
				} else {
					e.patterns = append(e.patterns, p)
				}
			}
		}
	}
	e.patterns = append(e.patterns, &matcher.EntityPattern{
		Name:       DateTimeEntity,
		Resolution: entity.None(),
		Matcher:    matcher.MustCompile(defaultDateTimePattern, matcher.CompileOptions{Exact: e.exact, Fuzzy: e.fuzzy}),
		Source:     defaultDateTimePattern,
	})
	return nil
}

func (e *Engine) detectBuiltins() {
	kinds := make(map[string]bool)
	if e.allBuiltins {
		for _, k := range builtin.Taxonomy {
			kinds[k] = true
		}
	}
	for _, p := range e.Patterns() {
		for _, ref := range matcher.References(p.Matcher) {
			if kind, ok := builtin.KindOf(ref); ok {
				kinds[kind] = true
			}
		}
	}
	for k := range kinds {
		e.builtins = append(e.builtins, k)
	}
	sort.Strings(e.builtins)
}

func (e *Engine) validateReferences() []string {
	defined := make(map[string]bool)
	define := func(name string) { defined[strings.ToLower(name)] = true }
	for _, k := range builtin.Taxonomy {
		define(k)
	}
	for _, k := range builtin.DateTimeKinds {
		define(k)
	}
	define(DateTimeEntity)
	define(builtin.OrdinalRelative)
	define(WildcardEntity)
	for _, name := range e.external {
		define(name)
	}
	all := append(append([]*matcher.EntityPattern(nil), e.patterns...), e.wildcards...)
	for _, p := range all {
		define(p.Name)
	}

	var warnings []string
	reported := make(map[string]bool)
	for _, p := range all {
		for _, ref := range matcher.References(p.Matcher) {
			key := strings.ToLower(ref)
			if defined[key] || reported[key] {
				continue
			}
			reported[key] = true
			warnings = append(warnings, "WARNING: @"+ref+" does not exist.")
		}
	}
	return warnings
}

// Warnings returns macro expansion warnings followed by validation warnings.
func (e *Engine) Warnings() []string {
	return append([]string(nil), e.warnings...)
}

// Locale returns the model locale.
func (e *Engine) Locale() string { return e.locale }

// Builtins returns the built-in kinds run on every call, sorted.
func (e *Engine) Builtins() []string {
	return append([]string(nil), e.builtins...)
}

// Patterns returns the compiled patterns, ordinary tier first.
func (e *Engine) Patterns() []*matcher.EntityPattern {
	out := make([]*matcher.EntityPattern, 0, len(e.patterns)+len(e.wildcards))
	out = append(out, e.patterns...)
	return append(out, e.wildcards...)
}

// Tokenize returns the token entities of text. Each carries its exact form
// and, unless it starts with a sigil, its phonetic codes.
func (e *Engine) Tokenize(text string) []*entity.Entity {
	toks := e.exact.Tokenize(text)
	out := make([]*entity.Entity, 0, len(toks))
	for _, tok := range toks {
		tr := &entity.TokenResolution{Token: tok.Term}
		if !tokenizer.HasSigil(tok.Term) {
			for _, code := range e.fuzzy.Tokenize(text[tok.Start:tok.End]) {
				tr.FuzzyTokens = append(tr.FuzzyTokens, code.Term)
			}
		}
		out = append(out, &entity.Entity{
			Type:       entity.TokenType,
			Start:      tok.Start,
			End:        tok.End,
			Text:       text[tok.Start:tok.End],
			Resolution: entity.Structured(tr),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Match extracts entities from text. ctx is checked between sweeps; a
// cancelled call returns an ErrCodeMatchCancelled error.
func (e *Engine) Match(ctx context.Context, text string, opts MatchOptions) ([]*entity.Entity, error) {
	began := time.Now()
	locale := opts.Locale
	if locale == "" {
		locale = e.locale
	}

	tokens := e.Tokenize(text)
	mc := matcher.NewContext(text, tokens)
	for _, ext := range opts.External {
		if ext == nil || !ext.Valid() || ext.End > len(text) {
			e.logger.Warn("external entity ignored", logging.Any("entity", ext))
			continue
		}
		mc.Add(ext)
	}
	if err := e.addBuiltins(ctx, mc, text, locale); err != nil {
		return nil, err
	}

	sweeps := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMatchCancelled, "match cancelled")
		}
		added := sweep(mc, e.patterns)
		sweeps++
		if added == 0 && len(e.wildcards) > 0 {
			added = sweep(mc, e.wildcards)
			sweeps++
		}
		if added == 0 {
			break
		}
	}

	var out []*entity.Entity
	if opts.IncludeInternal {
		out = append(append(out, tokens...), mc.Entities()...)
	} else {
		for _, ent := range mc.Entities() {
			if !ent.Internal() {
				out = append(out, ent)
			}
		}
		out = Resolve(out)
	}

	stats := Stats{Tokens: len(tokens), Sweeps: sweeps, Entities: len(out), Duration: time.Since(began)}
	e.logger.Debug("match complete",
		logging.Int("tokens", stats.Tokens),
		logging.Int("sweeps", stats.Sweeps),
		logging.Int("entities", stats.Entities),
		logging.Duration("duration", stats.Duration),
	)
	if e.observer != nil {
		e.observer.ObserveMatch(stats)
	}
	return out, nil
}

func (e *Engine) addBuiltins(ctx context.Context, mc *matcher.Context, text, locale string) error {
	for _, kind := range e.builtins {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCodeMatchCancelled, "match cancelled")
		}
		found, err := e.recognizer.Recognize(ctx, text, locale, kind)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeBuiltinFailure, "built-in recognizer failed").WithDetail(kind)
		}
		for _, ent := range found {
			if ent == nil || !ent.Valid() || ent.End > len(text) {
				e.logger.Warn("built-in entity ignored", logging.String("kind", kind), logging.Any("entity", ent))
				continue
			}
			ent.Score = entity.BuiltinScore
			mc.Add(ent)
		}
	}
	return nil
}

// sweep applies every pattern at every token start and commits what it found.
func sweep(mc *matcher.Context, patterns []*matcher.EntityPattern) int {
	for _, tok := range mc.Tokens {
		for _, p := range patterns {
			ent := matcher.Apply(mc, p, tok.Start)
			if ent == nil {
				continue
			}
			mc.Stage(ent)
			for _, child := range ent.Children {
				mc.Stage(child)
			}
		}
	}
	return mc.Commit()
}
