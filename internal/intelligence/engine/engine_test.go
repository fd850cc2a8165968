package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lupa/internal/intelligence/builtin"
	"github.com/turtacn/lupa/internal/intelligence/model"
	"github.com/turtacn/lupa/pkg/errors"
	"github.com/turtacn/lupa/pkg/types/entity"
)

func def(name string, patterns ...string) model.Definition {
	d := model.Definition{Name: name}
	for _, p := range patterns {
		d.Patterns = append(d.Patterns, model.PatternGroup{p})
	}
	return d
}

func newEngine(t *testing.T, m *model.Model, opts ...Option) *Engine {
	t.Helper()
	e, err := New(m, opts...)
	require.NoError(t, err)
	return e
}

func match(t *testing.T, e *Engine, text string) []*entity.Entity {
	t.Helper()
	out, err := e.Match(context.Background(), text, MatchOptions{})
	require.NoError(t, err)
	return out
}

// spans renders entities as "type [start,end] text" for compact assertions.
func spans(entities []*entity.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, fmt.Sprintf("%s [%d,%d] %s", e.Type, e.Start, e.End, e.Text))
	}
	return out
}

func rawText(t *testing.T, e *entity.Entity) string {
	t.Helper()
	s, ok := e.Resolution.Text()
	require.True(t, ok, "entity %s has no raw span resolution", e)
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Construction
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_NilModel(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelInvalid))
}

func TestNew_PatternSyntaxError(t *testing.T) {
	_, err := New(&model.Model{Entities: []model.Definition{def("greeting", "(hi|hello")}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodePatternSyntax))
	assert.Contains(t, err.Error(), "greeting: (hi|hello")
}

func TestNew_DoesNotModifyModel(t *testing.T) {
	m := &model.Model{Entities: []model.Definition{def("a", "x"), def("A", "y")}}
	e := newEngine(t, m)
	assert.Equal(t, "", m.Locale)
	assert.Len(t, m.Entities, 2)
	assert.Equal(t, model.DefaultLocale, e.Locale())
}

func TestNew_DefaultBuiltinsAndPatterns(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("anything", "call ___"),
		def("greeting", "hello"),
	}})
	assert.Equal(t, []string{builtin.DateTime}, e.Builtins())

	var names []string
	for _, p := range e.Patterns() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"greeting", DateTimeEntity, "anything"}, names)
}

func TestNew_ReferencedBuiltins(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("price", "(@number) (@currency)?"),
		def("when", "(@datetimeV2.date)"),
	}})
	assert.Equal(t, []string{builtin.Currency, builtin.DateTime, builtin.Number}, e.Builtins())
	assert.Empty(t, e.Warnings())
}

func TestNew_UseAllBuiltins(t *testing.T) {
	e := newEngine(t, &model.Model{}, UseAllBuiltins())
	assert.Equal(t, builtin.Taxonomy, e.Builtins())
}

func TestNew_Warnings(t *testing.T) {
	e := newEngine(t, &model.Model{
		Macros: map[string]string{"$color": "(red|blue)"},
		Entities: []model.Definition{
			def("paint", "paint $nope", "(@missing) $color"),
			def("Paint", "(@MISSING) again"),
			def("other", "(@ghost)"),
		},
	})
	assert.Equal(t, []string{
		"WARNING: $nope is not defined.",
		"WARNING: entity Paint is defined more than once; patterns merged.",
		"WARNING: @missing does not exist.",
		"WARNING: @ghost does not exist.",
	}, e.Warnings())
}

func TestNew_KnownReferencesDoNotWarn(t *testing.T) {
	e := newEngine(t, &model.Model{
		ExternalEntities: []string{"Upstream"},
		Entities: []model.Definition{
			def("a", "(@upstream) (@ordinal.relative) (@datetime) (@wildcard) (@B)"),
			def("b", "x"),
		},
	})
	assert.Empty(t, e.Warnings())
}

// ─────────────────────────────────────────────────────────────────────────────
// Matching
// ─────────────────────────────────────────────────────────────────────────────

func TestMatch_GreetingModel(t *testing.T) {
	m, err := model.Load(filepath.Join("..", "model", "testdata", "greeting.json"))
	require.NoError(t, err)
	e := newEngine(t, m)

	out := match(t, e, "hello there")
	require.Len(t, out, 1)
	assert.Equal(t, "greeting", out[0].Type)
	assert.Equal(t, 0, out[0].Start)
	assert.Equal(t, 11, out[0].End)
	assert.Equal(t, "hello there", rawText(t, out[0]))

	out = match(t, e, "hi")
	require.Len(t, out, 1)
	assert.Equal(t, "hi", rawText(t, out[0]))

	assert.Empty(t, match(t, e, "goodbye"))
}

func TestMatch_Macro(t *testing.T) {
	e := newEngine(t, &model.Model{
		Macros:   map[string]string{"$color": "(red|green|blue)"},
		Entities: []model.Definition{def("colorPhrase", "my favorite is $color")},
	})
	assert.Equal(t, []string{"colorPhrase [0,19] my favorite is blue"}, spans(match(t, e, "my favorite is blue")))
	assert.Empty(t, match(t, e, "my favorite is pink"))
}

func TestMatch_UndefinedMacroMatchesLiterally(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{def("paint", "paint $nope")}})
	assert.Equal(t, []string{"paint [0,11] paint $nope"}, spans(match(t, e, "paint $nope")))
	assert.Empty(t, match(t, e, "paint red"))
}

func TestMatch_CompositionInAnyOrder(t *testing.T) {
	defs := []model.Definition{
		def("color", "(red|blue)"),
		def("object", "(@color) car"),
		def("phrase", "big (@object)"),
	}
	reversed := []model.Definition{defs[2], defs[1], defs[0]}

	for _, entities := range [][]model.Definition{defs, reversed} {
		e := newEngine(t, &model.Model{Entities: entities})
		out := match(t, e, "big red car")
		assert.Equal(t, []string{
			"phrase [0,11] big red car",
			"object [4,11] red car",
			"color [4,7] red",
		}, spans(out))

		phrase := out[0]
		require.Len(t, phrase.Children, 1)
		assert.Equal(t, "object", phrase.Children[0].Type)
		require.Len(t, phrase.Children[0].Children, 1)
		assert.Equal(t, "color", phrase.Children[0].Children[0].Type)
		assert.True(t, phrase.Resolution.IsNone())
		assert.Equal(t, "red", rawText(t, out[2]))
	}
}

func TestMatch_ReferencesAreCaseInsensitive(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("Color", "red"),
		def("object", "(@COLOR) car"),
	}})
	assert.Equal(t, []string{"object [0,7] red car", "Color [0,3] red"}, spans(match(t, e, "red car")))
}

func TestMatch_WildcardTierRunsAfterOrdinaryPatterns(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("name", "alice"),
		def("call", "call ___"),
		def("callName", "call (@name)"),
	}})
	out := match(t, e, "call alice")
	assert.ElementsMatch(t, []string{
		"call [0,10] call alice",
		"callName [0,10] call alice",
		"name [5,10] alice",
	}, spans(out))
}

func TestMatch_WildcardFeedsOrdinaryPatterns(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("target", "call ___"),
		def("urgent", "(@target) right away"),
	}})
	out := match(t, e, "call bob right away")
	assert.Equal(t, []string{
		"urgent [0,19] call bob right away",
		"target [0,8] call bob",
	}, spans(out))
}

func TestMatch_ContainmentKeepsLongerSpan(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("place", "new york", "new york city"),
	}})
	assert.Equal(t, []string{"place [0,13] new york city"}, spans(match(t, e, "new york city")))
}

func TestMatch_DifferentTypesAreKept(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("x", "a b"),
		def("y", "b c"),
	}})
	assert.Equal(t, []string{"x [0,3] a b", "y [2,5] b c"}, spans(match(t, e, "a b c")))
}

func TestMatch_EqualOverlapPrefersEarlierStart(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("x", "a b", "b c"),
	}})
	assert.Equal(t, []string{"x [0,3] a b"}, spans(match(t, e, "a b c")))
}

func TestMatch_NormalizedResolution(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{{
		Name: "agree",
		Patterns: []model.PatternGroup{
			{"yes", "yeah", "yep"},
			{"sure"},
		},
	}}})

	out := match(t, e, "yeah")
	require.Len(t, out, 1)
	assert.Equal(t, "yes", rawText(t, out[0]))

	out = match(t, e, "sure")
	require.Len(t, out, 1)
	assert.Equal(t, "sure", rawText(t, out[0]))
}

func TestMatch_FuzzyDefinition(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		{Name: "fruit", FuzzyMatch: true, Patterns: []model.PatternGroup{{"banana"}}},
	}})
	assert.Equal(t, []string{"fruit [4,11] bananna"}, spans(match(t, e, "one bananna")))
}

func TestMatch_FuzzyAlternateCode(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		{Name: "person", FuzzyMatch: true, Patterns: []model.PatternGroup{{"smith"}}},
	}})
	assert.Equal(t, []string{"person [3,10] schmidt"}, spans(match(t, e, "mr schmidt")))
	assert.Empty(t, match(t, e, "mr jones"))
}

func TestMatch_BuiltinReference(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{def("price", "(@number) dollars")}})
	out := match(t, e, "pay 20 dollars")
	assert.Equal(t, []string{"price [4,14] 20 dollars", "number [4,6] 20"}, spans(out))
	assert.Equal(t, entity.BuiltinScore, out[1].Score)
	require.Len(t, out[0].Children, 1)
	assert.Same(t, out[1], out[0].Children[0])
}

func TestMatch_UseAllBuiltins(t *testing.T) {
	e := newEngine(t, &model.Model{}, UseAllBuiltins())
	out := match(t, e, "I have 3 apples")
	assert.Contains(t, spans(out), "number [7,8] 3")
}

func TestMatch_ExternalEntities(t *testing.T) {
	e := newEngine(t, &model.Model{
		ExternalEntities: []string{"upstream"},
		Entities:         []model.Definition{def("trip", "go (@upstream)")},
	})
	out, err := e.Match(context.Background(), "go home", MatchOptions{External: []*entity.Entity{
		{Type: "upstream", Start: 3, End: 7, Text: "home", Resolution: entity.RawSpan("HOME")},
		{Type: "upstream", Start: 5, End: 2},
		{Type: "upstream", Start: 3, End: 99},
		nil,
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"trip [0,7] go home", "upstream [3,7] home"}, spans(out))
}

func TestMatch_IncludeInternal(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("^word", "hello"),
		def("greeting", "(@^word) there"),
	}})

	out, err := e.Match(context.Background(), "hello there", MatchOptions{IncludeInternal: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"^token [0,5] hello",
		"^token [6,11] there",
		"^word [0,5] hello",
		"greeting [0,11] hello there",
	}, spans(out))
	tr, ok := entity.TokenOf(out[0])
	require.True(t, ok)
	assert.Equal(t, "hello", tr.Token)
	assert.NotEmpty(t, tr.FuzzyTokens)

	assert.Equal(t, []string{"greeting [0,11] hello there"}, spans(match(t, e, "hello there")))
}

func TestMatch_Idempotent(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("x", "a b", "b c", "a b c e"),
		def("y", "c e"),
	}})
	out := match(t, e, "a b c e")
	assert.Equal(t, []string{"x [0,7] a b c e", "y [4,7] c e"}, spans(out))
	assert.Equal(t, out, Resolve(out))
	assert.Equal(t, out, match(t, e, "a b c e"))
}

func TestMatch_Cancelled(t *testing.T) {
	e := newEngine(t, &model.Model{Entities: []model.Definition{def("greeting", "hello")}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Match(ctx, "hello", MatchOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMatchCancelled))
}

func TestMatch_BuiltinFailure(t *testing.T) {
	failing := builtin.RecognizerFunc(func(context.Context, string, string, string) ([]*entity.Entity, error) {
		return nil, fmt.Errorf("backend unavailable")
	})
	e := newEngine(t, &model.Model{}, WithRecognizer(failing))

	_, err := e.Match(context.Background(), "anything", MatchOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBuiltinFailure))
	assert.Contains(t, err.Error(), builtin.DateTime)
}

func TestMatch_BuiltinSpanPastTextIsIgnored(t *testing.T) {
	const text = "pay 20"
	oversized := builtin.RecognizerFunc(func(_ context.Context, _, _, kind string) ([]*entity.Entity, error) {
		if kind != builtin.Number {
			return nil, nil
		}
		return []*entity.Entity{{Type: builtin.Number, Start: 4, End: len(text) + 1, Text: "20"}}, nil
	})
	e := newEngine(t, &model.Model{Entities: []model.Definition{def("amount", "(@number)")}}, WithRecognizer(oversized))

	assert.NotPanics(t, func() {
		out, err := e.Match(context.Background(), text, MatchOptions{})
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestMatch_RecognizerLocale(t *testing.T) {
	var locales []string
	rec := builtin.RecognizerFunc(func(_ context.Context, _, locale, _ string) ([]*entity.Entity, error) {
		locales = append(locales, locale)
		return nil, nil
	})
	e := newEngine(t, &model.Model{Locale: "fr-fr"}, WithRecognizer(rec))

	_, err := e.Match(context.Background(), "bonjour", MatchOptions{})
	require.NoError(t, err)
	_, err = e.Match(context.Background(), "bonjour", MatchOptions{Locale: "en-us"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fr-fr", "en-us"}, locales)
}

func TestMatch_DateTimeUnifiesSubKinds(t *testing.T) {
	e := newEngine(t, &model.Model{})
	out := match(t, e, "see you tomorrow")
	require.NotEmpty(t, out)

	var unified *entity.Entity
	for _, ent := range out {
		if ent.Type == DateTimeEntity {
			unified = ent
		}
	}
	require.NotNil(t, unified, "got %v", spans(out))
	assert.Equal(t, "tomorrow", unified.Text)
	require.Len(t, unified.Children, 1)
	assert.Equal(t, builtin.DateV2, unified.Children[0].Type)
}

type countingObserver struct{ calls []Stats }

func (o *countingObserver) ObserveMatch(s Stats) { o.calls = append(o.calls, s) }

func TestMatch_Observer(t *testing.T) {
	obs := &countingObserver{}
	e := newEngine(t, &model.Model{Entities: []model.Definition{
		def("color", "red"),
		def("object", "(@color) car"),
	}}, WithObserver(obs))

	match(t, e, "red car")
	require.Len(t, obs.calls, 1)
	assert.Equal(t, 2, obs.calls[0].Tokens)
	assert.Equal(t, 2, obs.calls[0].Entities)
	assert.Equal(t, 3, obs.calls[0].Sweeps)
}

func TestEngine_Tokenize(t *testing.T) {
	e := newEngine(t, &model.Model{})
	toks := e.Tokenize("Call @Bob")
	require.Len(t, toks, 2)
	assert.Equal(t, entity.TokenType, toks[0].Type)

	first, _ := entity.TokenOf(toks[0])
	assert.Equal(t, "call", first.Token)
	assert.NotEmpty(t, first.FuzzyTokens)

	second, _ := entity.TokenOf(toks[1])
	assert.Equal(t, "@bob", second.Token)
	assert.Empty(t, second.FuzzyTokens)
}
