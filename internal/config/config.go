// Package config defines lupa's configuration tree. Each infrastructure
// package owns the struct for its own section; this package composes them,
// fills defaults and validates the result.
package config

import (
	"time"

	"github.com/turtacn/lupa/internal/infrastructure/database/postgres"
	"github.com/turtacn/lupa/internal/infrastructure/database/redis"
	"github.com/turtacn/lupa/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/lupa/internal/infrastructure/storage/minio"
	"github.com/turtacn/lupa/pkg/errors"
)

// Model sources accepted by EngineConfig.ModelSource.
const (
	ModelSourceFile     = "file"
	ModelSourcePostgres = "postgres"
	ModelSourceMinIO    = "minio"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	Mode            string          `mapstructure:"mode"` // debug | release | test
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64           `mapstructure:"max_body_size"`
	CORSOrigins     []string        `mapstructure:"cors_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles /api/v1 per client IP. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// EngineConfig selects the model and tunes matching.
type EngineConfig struct {
	// ModelSource is file, postgres or minio.
	ModelSource string `mapstructure:"model_source"`
	// ModelPath is the document read by the file source and watched when
	// WatchModel is set.
	ModelPath string `mapstructure:"model_path"`
	// ModelName selects the latest version of a model stored in postgres.
	ModelName        string        `mapstructure:"model_name"`
	UseAllBuiltins   bool          `mapstructure:"use_all_builtins"`
	BatchConcurrency int           `mapstructure:"batch_concurrency"`
	MaxTextLength    int           `mapstructure:"max_text_length"`
	WatchModel       bool          `mapstructure:"watch_model"`
	WatchDebounce    time.Duration `mapstructure:"watch_debounce"`
	// ReloadInterval polls non-file sources. Zero disables polling.
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// Config is the root of the configuration tree.
type Config struct {
	Server   ServerConfig             `mapstructure:"server"`
	Log      logging.LogConfig        `mapstructure:"log"`
	Engine   EngineConfig             `mapstructure:"engine"`
	Redis    redis.RedisConfig        `mapstructure:"redis"`
	Postgres postgres.PostgresConfig  `mapstructure:"postgres"`
	MinIO    minio.MinIOConfig        `mapstructure:"minio"`
	Kafka    kafka.KafkaConfig        `mapstructure:"kafka"`
	Metrics  prometheus.MetricsConfig `mapstructure:"metrics"`
}

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeValidation, "config: "+format, args...)
}

// Validate checks a defaulted Config. The first problem found is returned.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return invalid("server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Server.RateLimit.RequestsPerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		return invalid("server.rate_limit values must be >= 0")
	}

	switch c.Log.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	switch c.Engine.ModelSource {
	case ModelSourceFile:
		if c.Engine.ModelPath == "" {
			return invalid("engine.model_path is required for the file model source")
		}
	case ModelSourcePostgres:
		if !c.Postgres.Enabled {
			return invalid("engine.model_source is postgres but postgres.enabled is false")
		}
		if c.Engine.ModelName == "" {
			return invalid("engine.model_name is required for the postgres model source")
		}
	case ModelSourceMinIO:
		if !c.MinIO.Enabled {
			return invalid("engine.model_source is minio but minio.enabled is false")
		}
		if c.MinIO.ObjectKey == "" {
			return invalid("minio.object_key is required for the minio model source")
		}
	default:
		return invalid("engine.model_source %q is invalid; expected file|postgres|minio", c.Engine.ModelSource)
	}
	if c.Engine.BatchConcurrency < 1 {
		return invalid("engine.batch_concurrency must be >= 1, got %d", c.Engine.BatchConcurrency)
	}
	if c.Engine.MaxTextLength < 0 {
		return invalid("engine.max_text_length must be >= 0, got %d", c.Engine.MaxTextLength)
	}

	if c.Redis.Enabled {
		switch c.Redis.Mode {
		case redis.ModeStandalone:
			if c.Redis.Addr == "" {
				return invalid("redis.addr is required")
			}
		case redis.ModeSentinel:
			if c.Redis.MasterName == "" || len(c.Redis.SentinelAddrs) == 0 {
				return invalid("redis.master_name and redis.sentinel_addrs are required in sentinel mode")
			}
		case redis.ModeCluster:
			if len(c.Redis.ClusterAddrs) == 0 {
				return invalid("redis.cluster_addrs is required in cluster mode")
			}
		default:
			return invalid("redis.mode %q is invalid; expected standalone|sentinel|cluster", c.Redis.Mode)
		}
		if c.Redis.DB < 0 {
			return invalid("redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}

	if c.Postgres.Enabled {
		if c.Postgres.Host == "" {
			return invalid("postgres.host is required")
		}
		if c.Postgres.Database == "" {
			return invalid("postgres.database is required")
		}
		if c.Postgres.Username == "" {
			return invalid("postgres.username is required")
		}
	}

	if c.MinIO.Enabled && c.MinIO.Endpoint == "" {
		return invalid("minio.endpoint is required")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return invalid("kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return invalid("kafka.group_id is required")
		}
		if c.Kafka.RequestTopic == "" || c.Kafka.ResultTopic == "" {
			return invalid("kafka.request_topic and kafka.result_topic are required")
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Path == "" || c.Metrics.Path[0] != '/') {
		return invalid("metrics.path %q must start with /", c.Metrics.Path)
	}
	return nil
}
