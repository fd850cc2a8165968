package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  port: 9090
  mode: debug
log:
  level: debug
  format: console
engine:
  model_source: file
  model_path: /etc/lupa/model.yaml
  use_all_builtins: true
  batch_concurrency: 4
  watch_model: true
redis:
  enabled: true
  addr: redis:6379
  ttl: 5m
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
  group_id: extractors
metrics:
  enabled: true
  const_labels:
    env: test
`

func createTempConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, "config.yaml", validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "/etc/lupa/model.yaml", cfg.Engine.ModelPath)
	assert.True(t, cfg.Engine.UseAllBuiltins)
	assert.True(t, cfg.Engine.WatchModel)
	assert.Equal(t, 4, cfg.Engine.BatchConcurrency)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "extractors", cfg.Kafka.GroupID)
	assert.Equal(t, "lupa.match.requests", cfg.Kafka.RequestTopic)
	assert.Equal(t, map[string]string{"env": "test"}, cfg.Metrics.ConstLabels)
}

func TestLoad_JSON(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, "config.json", `{"server":{"port":7000},"engine":{"model_path":"m.json"}}`))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "m.json", cfg.Engine.ModelPath)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LUPA_SERVER_PORT", "8181")
	t.Setenv("LUPA_ENGINE_MAX_TEXT_LENGTH", "1000")

	cfg, err := Load(createTempConfigFile(t, "config.yaml", validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Engine.MaxTextLength)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValue(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "config.yaml", "server:\n  mode: staging\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.mode")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LUPA_ENGINE_MODEL_PATH", "/models/shop.json")
	t.Setenv("LUPA_REDIS_ENABLED", "true")
	t.Setenv("LUPA_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("LUPA_POSTGRES_STATEMENT_TIMEOUT", "5s")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/models/shop.json", cfg.Engine.ModelPath)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Postgres.StatementTimeout)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestWatch(t *testing.T) {
	path := createTempConfigFile(t, "config.yaml", validConfigYAML)

	var mu sync.Mutex
	var got *Config
	require.NoError(t, Watch(path, func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		got = cfg
	}))

	time.Sleep(50 * time.Millisecond)
	updated := []byte("server:\n  port: 9191\n")
	require.NoError(t, os.WriteFile(path, updated, 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Server.Port == 9191
	}, 3*time.Second, 20*time.Millisecond)
}
