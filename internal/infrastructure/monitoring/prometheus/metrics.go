package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/lupa/internal/intelligence/engine"
)

// AppMetrics is the fixed set of metrics lupa binaries publish.
type AppMetrics struct {
	// Matching
	MatchesTotal    CounterVec
	MatchDuration   HistogramVec
	MatchTokens     HistogramVec
	MatchSweeps     HistogramVec
	EntitiesEmitted HistogramVec

	// Model lifecycle
	ModelReloadsTotal CounterVec
	ModelPatterns     GaugeVec
	ModelWarnings     GaugeVec

	// Cache
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec

	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Messaging
	MessagesTotal          CounterVec
	MessageProcessDuration HistogramVec
}

var (
	DefaultMatchDurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultCountBuckets         = []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256, 512}
)

// NewAppMetrics registers every metric on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.MatchesTotal = collector.RegisterCounter("matches_total", "Match calls by outcome", "status")
	m.MatchDuration = collector.RegisterHistogram("match_duration_seconds", "Time spent in a single Match call", DefaultMatchDurationBuckets)
	m.MatchTokens = collector.RegisterHistogram("match_tokens", "Tokens produced per matched text", DefaultCountBuckets)
	m.MatchSweeps = collector.RegisterHistogram("match_sweeps", "Pattern sweeps run before the entity set stopped growing", DefaultCountBuckets)
	m.EntitiesEmitted = collector.RegisterHistogram("entities_emitted", "Entities returned per Match call", DefaultCountBuckets)

	m.ModelReloadsTotal = collector.RegisterCounter("model_reloads_total", "Model reload attempts by outcome", "source", "status")
	m.ModelPatterns = collector.RegisterGauge("model_patterns", "Compiled patterns in the active model")
	m.ModelWarnings = collector.RegisterGauge("model_warnings", "Validation warnings of the active model")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Match results served from cache", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Match results computed after a cache miss", "cache")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request latency", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "In-flight HTTP requests")

	m.MessagesTotal = collector.RegisterCounter("messages_total", "Kafka messages handled", "topic", "status")
	m.MessageProcessDuration = collector.RegisterHistogram("message_process_duration_seconds", "Time to handle one Kafka message", DefaultHTTPDurationBuckets, "topic")

	return m
}

// ObserveMatch records the stats of a successful Match call. It makes
// AppMetrics usable as an engine.Observer.
func (m *AppMetrics) ObserveMatch(s engine.Stats) {
	m.MatchesTotal.WithLabelValues("ok").Inc()
	m.MatchDuration.WithLabelValues().Observe(s.Duration.Seconds())
	m.MatchTokens.WithLabelValues().Observe(float64(s.Tokens))
	m.MatchSweeps.WithLabelValues().Observe(float64(s.Sweeps))
	m.EntitiesEmitted.WithLabelValues().Observe(float64(s.Entities))
}

// RecordMatchError counts a Match call that returned an error.
func (m *AppMetrics) RecordMatchError() {
	m.MatchesTotal.WithLabelValues("error").Inc()
}

func (m *AppMetrics) RecordReload(source string, err error, patterns, warnings int) {
	if err != nil {
		m.ModelReloadsTotal.WithLabelValues(source, "error").Inc()
		return
	}
	m.ModelReloadsTotal.WithLabelValues(source, "ok").Inc()
	m.ModelPatterns.WithLabelValues().Set(float64(patterns))
	m.ModelWarnings.WithLabelValues().Set(float64(warnings))
}

func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

func (m *AppMetrics) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// TrackActiveRequest increments the in-flight gauge and returns the func
// that decrements it.
func (m *AppMetrics) TrackActiveRequest() func() {
	g := m.HTTPActiveRequests.WithLabelValues()
	g.Inc()
	return g.Dec
}

func (m *AppMetrics) RecordMessage(topic string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MessagesTotal.WithLabelValues(topic, status).Inc()
	m.MessageProcessDuration.WithLabelValues(topic).Observe(d.Seconds())
}

var _ engine.Observer = (*AppMetrics)(nil)
