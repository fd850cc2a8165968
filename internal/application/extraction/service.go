// Package extraction is the application service in front of the matching
// engine. It owns the active model, reloads it from a ModelSource, caches
// match results and fans batches out over a bounded worker group.
package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/intelligence/engine"
	"github.com/turtacn/lupa/internal/intelligence/model"
	"github.com/turtacn/lupa/pkg/errors"
	"github.com/turtacn/lupa/pkg/types/entity"
)

// Service defines the extraction operations exposed to the HTTP, Kafka and
// CLI surfaces.
type Service interface {
	Match(ctx context.Context, input *MatchInput) (*MatchResult, error)
	MatchBatch(ctx context.Context, inputs []*MatchInput) ([]*MatchResult, error)
	Tokenize(ctx context.Context, text string) ([]*entity.Entity, error)
	Reload(ctx context.Context) error
	// Watch reloads the model whenever the file at path changes. It blocks
	// until ctx is done.
	Watch(ctx context.Context, path string) error
	Model() (*ModelInfo, error)
	Warnings() ([]string, error)
	Patterns() ([]*PatternInfo, error)
	Ready() bool
}

// MatchInput is one text to extract entities from.
type MatchInput struct {
	Text            string           `json:"text"`
	Locale          string           `json:"locale,omitempty"`
	IncludeInternal bool             `json:"include_internal,omitempty"`
	External        []*entity.Entity `json:"external,omitempty"`
}

// MatchResult carries the entities found in one text.
type MatchResult struct {
	Entities     []*entity.Entity `json:"entities"`
	ModelVersion string           `json:"model_version"`
	Cached       bool             `json:"cached"`
}

// ModelInfo describes the active model.
type ModelInfo struct {
	Version  string    `json:"version"`
	Source   string    `json:"source"`
	Locale   string    `json:"locale"`
	Patterns int       `json:"patterns"`
	Builtins []string  `json:"builtins"`
	Warnings []string  `json:"warnings"`
	LoadedAt time.Time `json:"loaded_at"`
}

// PatternInfo is one compiled pattern.
type PatternInfo struct {
	Entity  string `json:"entity"`
	Source  string `json:"source"`
	Matcher string `json:"matcher"`
}

// Config tunes the service.
type Config struct {
	UseAllBuiltins bool
	// BatchConcurrency bounds MatchBatch workers. Defaults to 8.
	BatchConcurrency int
	// MaxTextLength rejects longer texts. Zero disables the check.
	MaxTextLength int
	// CacheTTL is passed to the result cache. Zero uses the cache default.
	CacheTTL time.Duration
	// WatchDebounce coalesces bursts of file events. Defaults to 200ms.
	WatchDebounce time.Duration
}

// ResultCache stores match results keyed by model version and input.
type ResultCache interface {
	// GetOrLoad reports true only when dest was read from the store.
	GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) (bool, error)
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// Metrics receives service level measurements.
type Metrics interface {
	engine.Observer
	RecordMatchError()
	RecordReload(source string, err error, patterns, warnings int)
	RecordCacheAccess(cache string, hit bool)
}

// Option configures a Service.
type Option func(*serviceImpl)

// WithCache enables result caching.
func WithCache(c ResultCache) Option {
	return func(s *serviceImpl) { s.cache = c }
}

// WithMetrics records match, cache and reload metrics.
func WithMetrics(m Metrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

// WithEngineOptions appends options to every engine the service compiles.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *serviceImpl) { s.engineOpts = append(s.engineOpts, opts...) }
}

const (
	defaultBatchConcurrency = 8
	defaultWatchDebounce    = 200 * time.Millisecond
	cacheName               = "match"
	cacheKeyPrefix          = "match:"
)

var ErrNoModel = errors.New(errors.ErrCodeModelNotFound, "no model loaded")

type snapshot struct {
	engine   *engine.Engine
	version  string
	source   string
	loadedAt time.Time
}

type serviceImpl struct {
	source     ModelSource
	cfg        Config
	logger     logging.Logger
	cache      ResultCache
	metrics    Metrics
	engineOpts []engine.Option

	active   atomic.Pointer[snapshot]
	reloadMu sync.Mutex
}

// NewService creates a Service. No model is loaded until Reload succeeds.
func NewService(source ModelSource, cfg Config, logger logging.Logger, opts ...Option) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = defaultWatchDebounce
	}
	s := &serviceImpl{
		source: source,
		cfg:    cfg,
		logger: logger.Named("extraction"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *serviceImpl) current() (*snapshot, error) {
	snap := s.active.Load()
	if snap == nil {
		return nil, ErrNoModel
	}
	return snap, nil
}

func (s *serviceImpl) Ready() bool { return s.active.Load() != nil }

// Reload loads the model from the source, compiles it and swaps it in. On
// failure the previous engine stays active.
func (s *serviceImpl) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	name := s.source.Name()
	snap, err := s.compile(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordReload(name, err, 0, 0)
		}
		s.logger.Warn("model reload failed", logging.String("source", name), logging.Err(err))
		return err
	}

	prev := s.active.Swap(snap)
	if s.metrics != nil {
		s.metrics.RecordReload(name, nil, len(snap.engine.Patterns()), len(snap.engine.Warnings()))
	}
	for _, w := range snap.engine.Warnings() {
		s.logger.Warn("model warning", logging.String("warning", w))
	}
	s.logger.Info("model loaded",
		logging.String("source", name),
		logging.String("version", snap.version),
		logging.Int("patterns", len(snap.engine.Patterns())),
		logging.Strings("builtins", snap.engine.Builtins()),
	)

	if prev != nil && prev.version != snap.version && s.cache != nil {
		n, err := s.cache.DeleteByPrefix(ctx, cacheKeyPrefix+prev.version+":")
		if err != nil {
			s.logger.Warn("evict stale match results", logging.String("version", prev.version), logging.Err(err))
		} else {
			s.logger.Debug("evicted stale match results", logging.Int64("keys", n))
		}
	}
	return nil
}

func (s *serviceImpl) compile(ctx context.Context) (*snapshot, error) {
	m, err := s.source.Load(ctx)
	if err != nil {
		if _, ok := err.(*errors.AppError); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeModelSource, "load model").WithDetail(s.source.Name())
	}
	if m == nil {
		return nil, errors.New(errors.ErrCodeModelNotFound, "model source returned nothing").WithDetail(s.source.Name())
	}
	version, err := Version(m)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{engine.WithLogger(s.logger.Named("engine").With(logging.String("model_version", version)))}
	if s.metrics != nil {
		opts = append(opts, engine.WithObserver(s.metrics))
	}
	if s.cfg.UseAllBuiltins {
		opts = append(opts, engine.UseAllBuiltins())
	}
	opts = append(opts, s.engineOpts...)

	e, err := engine.New(m, opts...)
	if err != nil {
		return nil, err
	}
	return &snapshot{engine: e, version: version, source: s.source.Name(), loadedAt: time.Now().UTC()}, nil
}

// Version fingerprints a model by the digest of its JSON form.
func Version(m *model.Model) (string, error) {
	data, err := m.Marshal(model.FormatJSON)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "encode model")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6]), nil
}

func (s *serviceImpl) validate(input *MatchInput) error {
	if input == nil {
		return errors.New(errors.ErrCodeBadRequest, "match input is nil")
	}
	if s.cfg.MaxTextLength > 0 && len(input.Text) > s.cfg.MaxTextLength {
		return errors.Newf(errors.ErrCodeValidation, "text is longer than %d bytes", s.cfg.MaxTextLength)
	}
	return nil
}

func (s *serviceImpl) Match(ctx context.Context, input *MatchInput) (*MatchResult, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	snap, err := s.current()
	if err != nil {
		return nil, err
	}

	run := func(ctx context.Context) ([]*entity.Entity, error) {
		out, err := snap.engine.Match(ctx, input.Text, engine.MatchOptions{
			Locale:          input.Locale,
			External:        input.External,
			IncludeInternal: input.IncludeInternal,
		})
		if err != nil && s.metrics != nil {
			s.metrics.RecordMatchError()
		}
		return out, err
	}

	// Results seeded with caller entities depend on more than the text.
	if s.cache == nil || len(input.External) > 0 {
		out, err := run(ctx)
		if err != nil {
			return nil, err
		}
		return &MatchResult{Entities: nonNil(out), ModelVersion: snap.version}, nil
	}

	var out []*entity.Entity
	key := cacheKey(snap.version, input)
	cached, err := s.cache.GetOrLoad(ctx, key, &out, s.cfg.CacheTTL, func(ctx context.Context) (interface{}, error) {
		found, err := run(ctx)
		return nonNil(found), err
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCacheAccess(cacheName, cached)
	}
	return &MatchResult{Entities: nonNil(out), ModelVersion: snap.version, Cached: cached}, nil
}

func cacheKey(version string, input *MatchInput) string {
	h := sha256.New()
	h.Write([]byte(input.Locale))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatBool(input.IncludeInternal)))
	h.Write([]byte{'|'})
	h.Write([]byte(input.Text))
	return cacheKeyPrefix + version + ":" + hex.EncodeToString(h.Sum(nil))
}

func nonNil(entities []*entity.Entity) []*entity.Entity {
	if entities == nil {
		return []*entity.Entity{}
	}
	return entities
}

// MatchBatch matches every input concurrently and returns results in input
// order. The first failure cancels the remaining work.
func (s *serviceImpl) MatchBatch(ctx context.Context, inputs []*MatchInput) ([]*MatchResult, error) {
	results := make([]*MatchResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			res, err := s.Match(gctx, input)
			if err != nil {
				if ae, ok := err.(*errors.AppError); ok {
					return ae.WithDetail(fmt.Sprintf("inputs[%d]", i))
				}
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *serviceImpl) Tokenize(ctx context.Context, text string) ([]*entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMatchCancelled, "tokenize cancelled")
	}
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	return snap.engine.Tokenize(text), nil
}

func (s *serviceImpl) Model() (*ModelInfo, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	return &ModelInfo{
		Version:  snap.version,
		Source:   snap.source,
		Locale:   snap.engine.Locale(),
		Patterns: len(snap.engine.Patterns()),
		Builtins: snap.engine.Builtins(),
		Warnings: snap.engine.Warnings(),
		LoadedAt: snap.loadedAt,
	}, nil
}

func (s *serviceImpl) Warnings() ([]string, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	return snap.engine.Warnings(), nil
}

func (s *serviceImpl) Patterns() ([]*PatternInfo, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	patterns := snap.engine.Patterns()
	out := make([]*PatternInfo, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, &PatternInfo{Entity: p.Name, Source: p.Source, Matcher: p.Matcher.String()})
	}
	return out, nil
}
