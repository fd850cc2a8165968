package extraction

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lupa/internal/infrastructure/database/redis"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/intelligence/engine"
	"github.com/turtacn/lupa/internal/intelligence/model"
	"github.com/turtacn/lupa/internal/testutil"
	"github.com/turtacn/lupa/pkg/errors"
	"github.com/turtacn/lupa/pkg/types/entity"
)

type fakeMetrics struct {
	mu          sync.Mutex
	matches     int
	matchErrors int
	hits        int
	misses      int
	reloadOK    int
	reloadErr   int
}

func (f *fakeMetrics) ObserveMatch(engine.Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches++
}

func (f *fakeMetrics) RecordMatchError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchErrors++
}

func (f *fakeMetrics) RecordReload(_ string, err error, _, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.reloadErr++
		return
	}
	f.reloadOK++
}

func (f *fakeMetrics) RecordCacheAccess(_ string, hit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hit {
		f.hits++
	} else {
		f.misses++
	}
}

func newLoaded(t *testing.T, m *model.Model, cfg Config, opts ...Option) Service {
	t.Helper()
	svc := NewService(StaticSource(m), cfg, testutil.NewMockLogger(), opts...)
	require.NoError(t, svc.Reload(context.Background()))
	return svc
}

func types(entities []*entity.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, fmt.Sprintf("%s [%d,%d]", e.Type, e.Start, e.End))
	}
	return out
}

func newMiniredisCache(t *testing.T) (ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewRedisCache(client, logging.NewNopLogger(), redis.WithoutJitter()), mr
}

func TestService_NotReady(t *testing.T) {
	svc := NewService(StaticSource(testutil.GreetingModel()), Config{}, nil)
	assert.False(t, svc.Ready())

	_, err := svc.Match(context.Background(), &MatchInput{Text: "hi"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotFound))
	_, err = svc.Warnings()
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotFound))
	_, err = svc.Model()
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotFound))
}

func TestService_Match(t *testing.T) {
	metrics := &fakeMetrics{}
	svc := newLoaded(t, testutil.GreetingModel(), Config{}, WithMetrics(metrics))
	assert.True(t, svc.Ready())

	res, err := svc.Match(context.Background(), &MatchInput{Text: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting [0,11]"}, types(res.Entities))
	assert.False(t, res.Cached)
	assert.NotEmpty(t, res.ModelVersion)

	res, err = svc.Match(context.Background(), &MatchInput{Text: "red car"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ride [0,7]", "color [0,3]", "vehicle [4,7]"}, types(res.Entities))

	res, err = svc.Match(context.Background(), &MatchInput{Text: "goodbye"})
	require.NoError(t, err)
	assert.NotNil(t, res.Entities)
	assert.Empty(t, res.Entities)

	assert.Equal(t, 3, metrics.matches)
	assert.Equal(t, 1, metrics.reloadOK)
}

func TestService_MatchValidation(t *testing.T) {
	svc := newLoaded(t, testutil.GreetingModel(), Config{MaxTextLength: 5})

	_, err := svc.Match(context.Background(), nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	_, err = svc.Match(context.Background(), &MatchInput{Text: "hello there"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestService_MatchCancelled(t *testing.T) {
	metrics := &fakeMetrics{}
	svc := newLoaded(t, testutil.GreetingModel(), Config{}, WithMetrics(metrics))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Match(ctx, &MatchInput{Text: "hello"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMatchCancelled))
	assert.Equal(t, 1, metrics.matchErrors)
}

func TestService_ReloadFailureKeepsPreviousModel(t *testing.T) {
	var calls int32
	source := NewSourceFunc("flaky", func(context.Context) (*model.Model, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return testutil.GreetingModel(), nil
		}
		return &model.Model{Entities: []model.Definition{{Name: "broken", Patterns: []model.PatternGroup{{"(open"}}}}}, nil
	})
	metrics := &fakeMetrics{}
	logger := testutil.NewMockLogger()
	svc := NewService(source, Config{}, logger, WithMetrics(metrics))

	require.NoError(t, svc.Reload(context.Background()))
	before, err := svc.Model()
	require.NoError(t, err)

	err = svc.Reload(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodePatternSyntax))
	after, err := svc.Model()
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 1, metrics.reloadErr)
	assert.True(t, logger.HasMessage("warn", "model reload failed"))

	res, err := svc.Match(context.Background(), &MatchInput{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting [0,2]"}, types(res.Entities))
}

func TestService_ReloadSourceError(t *testing.T) {
	svc := NewService(NewSourceFunc("db", func(context.Context) (*model.Model, error) {
		return nil, fmt.Errorf("connection refused")
	}), Config{}, nil)

	err := svc.Reload(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelSource))
	assert.ErrorContains(t, err, "connection refused")

	svc = NewService(NewSourceFunc("db", func(context.Context) (*model.Model, error) { return nil, nil }), Config{}, nil)
	assert.True(t, errors.IsCode(svc.Reload(context.Background()), errors.ErrCodeModelNotFound))
}

func TestService_ModelInfoWarningsPatterns(t *testing.T) {
	m := testutil.GreetingModel()
	m.Entities = append(m.Entities, model.Definition{Name: "ghost", Patterns: []model.PatternGroup{{"(@missing)"}}})
	svc := newLoaded(t, m, Config{})

	info, err := svc.Model()
	require.NoError(t, err)
	assert.Equal(t, "static", info.Source)
	assert.Equal(t, "en", info.Locale)
	assert.Equal(t, 6, info.Patterns)
	assert.Equal(t, []string{"datetime"}, info.Builtins)

	warnings, err := svc.Warnings()
	require.NoError(t, err)
	assert.Equal(t, []string{"WARNING: @missing does not exist."}, warnings)

	patterns, err := svc.Patterns()
	require.NoError(t, err)
	require.Len(t, patterns, 6)
	assert.Equal(t, "greeting", patterns[0].Entity)
	assert.Equal(t, "(hi|hello) (there)?", patterns[0].Source)
	assert.NotEmpty(t, patterns[0].Matcher)
}

func TestService_UseAllBuiltins(t *testing.T) {
	svc := newLoaded(t, &model.Model{}, Config{UseAllBuiltins: true})
	res, err := svc.Match(context.Background(), &MatchInput{Text: "I have 3 apples"})
	require.NoError(t, err)
	assert.Contains(t, types(res.Entities), "number [7,8]")
}

func TestService_Tokenize(t *testing.T) {
	svc := newLoaded(t, testutil.GreetingModel(), Config{})
	toks, err := svc.Tokenize(context.Background(), "Call @Bob")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "@Bob", toks[1].Text)
}

func TestService_MatchBatch(t *testing.T) {
	svc := newLoaded(t, testutil.GreetingModel(), Config{BatchConcurrency: 2})
	texts := []string{"hi", "blue truck", "nothing here", "hello there", "green car"}
	inputs := make([]*MatchInput, len(texts))
	for i, text := range texts {
		inputs[i] = &MatchInput{Text: text}
	}

	results, err := svc.MatchBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, len(texts))
	assert.Equal(t, []string{"greeting [0,2]"}, types(results[0].Entities))
	assert.Contains(t, types(results[1].Entities), "ride [0,10]")
	assert.Empty(t, results[2].Entities)
	assert.Equal(t, []string{"greeting [0,11]"}, types(results[3].Entities))
	assert.Contains(t, types(results[4].Entities), "ride [0,9]")
}

func TestService_MatchBatchFailure(t *testing.T) {
	svc := newLoaded(t, testutil.GreetingModel(), Config{MaxTextLength: 3})
	_, err := svc.MatchBatch(context.Background(), []*MatchInput{{Text: "hi"}, {Text: "too long"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	assert.ErrorContains(t, err, "inputs[1]")
}

func TestService_Cache(t *testing.T) {
	cache, mr := newMiniredisCache(t)
	metrics := &fakeMetrics{}
	svc := newLoaded(t, testutil.GreetingModel(), Config{CacheTTL: time.Minute}, WithCache(cache), WithMetrics(metrics))

	first, err := svc.Match(context.Background(), &MatchInput{Text: "hello there"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Match(context.Background(), &MatchInput{Text: "hello there"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, types(first.Entities), types(second.Entities))
	assert.Equal(t, "hello there", second.Entities[0].Text)

	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 1, metrics.matches)
	assert.Len(t, mr.Keys(), 1)

	// A different locale is a different key.
	third, err := svc.Match(context.Background(), &MatchInput{Text: "hello there", Locale: "en-gb"})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Len(t, mr.Keys(), 2)
}

type staticCache struct {
	entities []*entity.Entity
	cached   bool
}

func (c *staticCache) GetOrLoad(_ context.Context, _ string, dest interface{}, _ time.Duration, _ func(context.Context) (interface{}, error)) (bool, error) {
	*dest.(*[]*entity.Entity) = c.entities
	return c.cached, nil
}

func (c *staticCache) DeleteByPrefix(context.Context, string) (int64, error) { return 0, nil }

func TestService_CacheSourceDrivesHitAccounting(t *testing.T) {
	shared := []*entity.Entity{{Type: "greeting", Start: 0, End: 2, Text: "hi"}}
	tests := []struct {
		name   string
		cached bool
	}{
		{"value read from the store", true},
		{"value shared from another caller's load", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &fakeMetrics{}
			cache := &staticCache{entities: shared, cached: tt.cached}
			svc := newLoaded(t, testutil.GreetingModel(), Config{}, WithCache(cache), WithMetrics(metrics))

			res, err := svc.Match(context.Background(), &MatchInput{Text: "hi"})
			require.NoError(t, err)
			assert.Equal(t, tt.cached, res.Cached)
			assert.Equal(t, []string{"greeting [0,2]"}, types(res.Entities))
			assert.Zero(t, metrics.matches, "the engine does not run")
			if tt.cached {
				assert.Equal(t, 1, metrics.hits)
				assert.Zero(t, metrics.misses)
			} else {
				assert.Zero(t, metrics.hits)
				assert.Equal(t, 1, metrics.misses)
			}
		})
	}
}

func TestService_ConcurrentCacheAccounting(t *testing.T) {
	cache, _ := newMiniredisCache(t)
	metrics := &fakeMetrics{}
	svc := newLoaded(t, testutil.GreetingModel(), Config{CacheTTL: time.Minute}, WithCache(cache), WithMetrics(metrics))

	const callers = 16
	var (
		wg     sync.WaitGroup
		cached atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Match(context.Background(), &MatchInput{Text: "hello there"})
			if assert.NoError(t, err) && res.Cached {
				cached.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, callers, metrics.hits+metrics.misses)
	assert.Equal(t, int(cached.Load()), metrics.hits)
	assert.GreaterOrEqual(t, metrics.misses, metrics.matches)
	assert.GreaterOrEqual(t, metrics.matches, 1)
}

func TestService_ExternalEntitiesBypassCache(t *testing.T) {
	cache, mr := newMiniredisCache(t)
	m := &model.Model{
		ExternalEntities: []string{"person"},
		Entities:         []model.Definition{{Name: "call", Patterns: []model.PatternGroup{{"call (@person)"}}}},
	}
	svc := newLoaded(t, m, Config{}, WithCache(cache))

	res, err := svc.Match(context.Background(), &MatchInput{
		Text:     "call bob",
		External: []*entity.Entity{{Type: "person", Start: 5, End: 8, Text: "bob"}},
	})
	require.NoError(t, err)
	assert.Contains(t, types(res.Entities), "call [0,8]")
	assert.False(t, res.Cached)
	assert.Empty(t, mr.Keys())
}

func TestService_ReloadEvictsStaleResults(t *testing.T) {
	cache, mr := newMiniredisCache(t)
	var current atomic.Pointer[model.Model]
	current.Store(testutil.GreetingModel())
	source := NewSourceFunc("mem", func(context.Context) (*model.Model, error) { return current.Load(), nil })

	svc := NewService(source, Config{}, nil, WithCache(cache))
	require.NoError(t, svc.Reload(context.Background()))
	_, err := svc.Match(context.Background(), &MatchInput{Text: "hi"})
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 1)

	next := testutil.GreetingModel()
	next.Entities = append(next.Entities, model.Definition{Name: "farewell", Patterns: []model.PatternGroup{{"bye"}}})
	current.Store(next)
	require.NoError(t, svc.Reload(context.Background()))
	assert.Empty(t, mr.Keys())

	res, err := svc.Match(context.Background(), &MatchInput{Text: "bye"})
	require.NoError(t, err)
	assert.Equal(t, []string{"farewell [0,3]"}, types(res.Entities))
}

func TestVersion(t *testing.T) {
	a, err := Version(testutil.GreetingModel())
	require.NoError(t, err)
	b, err := Version(testutil.GreetingModel())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 12)

	changed := testutil.GreetingModel()
	changed.Locale = "fr"
	c, err := Version(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestFileSource(t *testing.T) {
	path := testutil.WriteModel(t, t.TempDir(), "model.yaml", testutil.GreetingModel())
	m, err := FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, m.Entities, 4)

	_, err = FileSource{Path: path + ".missing.json"}.Load(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelNotFound))
}

func TestService_Watch(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteModel(t, dir, "model.json", testutil.GreetingModel())
	svc := NewService(FileSource{Path: path}, Config{WatchDebounce: 20 * time.Millisecond}, nil)
	require.NoError(t, svc.Reload(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx, path) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	next := testutil.GreetingModel()
	next.Entities = append(next.Entities, model.Definition{Name: "farewell", Patterns: []model.PatternGroup{{"bye"}}})
	data, err := next.Marshal(model.FormatJSON)
	require.NoError(t, err)

	// The watcher may still be registering; keep touching the file until the
	// reload lands.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, data, 0o644)
		res, err := svc.Match(context.Background(), &MatchInput{Text: "bye"})
		return err == nil && len(res.Entities) == 1
	}, 5*time.Second, 100*time.Millisecond)
}
