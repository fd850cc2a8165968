package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/lupa/internal/infrastructure/messaging/kafka"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultServerMode, cfg.Server.Mode)
	assert.Equal(t, ModelSourceFile, cfg.Engine.ModelSource)
	assert.Equal(t, DefaultModelPath, cfg.Engine.ModelPath)
	assert.Equal(t, DefaultBatchConcurrency, cfg.Engine.BatchConcurrency)
	assert.Equal(t, 200*time.Millisecond, cfg.Engine.WatchDebounce)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, DefaultCacheTTL, cfg.Redis.TTL)
	assert.Equal(t, kafka.TopicMatchRequests, cfg.Kafka.RequestTopic)
	assert.Equal(t, kafka.TopicMatchResults, cfg.Kafka.ResultTopic)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "lupa", cfg.Metrics.Namespace)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Engine.ModelSource = ModelSourcePostgres
	cfg.Engine.BatchConcurrency = 2
	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Engine.BatchConcurrency)
	assert.Empty(t, cfg.Engine.ModelPath, "model path only defaults for the file source")
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
