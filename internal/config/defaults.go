package config

import (
	"time"

	"github.com/turtacn/lupa/internal/infrastructure/database/redis"
	"github.com/turtacn/lupa/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/prometheus"
)

const (
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultModelPath        = "model.json"
	DefaultBatchConcurrency = 8

	DefaultRedisAddr = "localhost:6379"
	DefaultCacheTTL  = 10 * time.Minute

	DefaultPostgresHost = "localhost"
	DefaultPostgresPort = 5432
	DefaultPostgresDB   = "lupa"

	DefaultMinIOEndpoint = "localhost:9000"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "lupa-worker"

	DefaultMetricsPath = "/metrics"
)

// ApplyDefaults fills zero-value fields in cfg. Explicit values always win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 4 << 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = logging.LevelInfo
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = logging.FormatJSON
	}

	if cfg.Engine.ModelSource == "" {
		cfg.Engine.ModelSource = ModelSourceFile
	}
	if cfg.Engine.ModelSource == ModelSourceFile && cfg.Engine.ModelPath == "" {
		cfg.Engine.ModelPath = DefaultModelPath
	}
	if cfg.Engine.BatchConcurrency == 0 {
		cfg.Engine.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.Engine.WatchDebounce == 0 {
		cfg.Engine.WatchDebounce = 200 * time.Millisecond
	}

	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = redis.ModeStandalone
	}
	if cfg.Redis.Mode == redis.ModeStandalone && cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "lupa:"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultCacheTTL
	}

	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPostgresHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.Database == "" {
		cfg.Postgres.Database = DefaultPostgresDB
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.RequestTopic == "" {
		cfg.Kafka.RequestTopic = kafka.TopicMatchRequests
	}
	if cfg.Kafka.ResultTopic == "" {
		cfg.Kafka.ResultTopic = kafka.TopicMatchResults
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = kafka.TopicMatchDeadLetter
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = prometheus.DefaultNamespace
	}
}
