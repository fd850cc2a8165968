// Package kafka carries match requests and results over Apache Kafka using
// segmentio/kafka-go.
package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/turtacn/lupa/pkg/errors"
)

// KafkaConfig is the kafka section of the configuration file.
type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	RequestTopic    string        `mapstructure:"request_topic"`
	ResultTopic     string        `mapstructure:"result_topic"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	Compression     string        `mapstructure:"compression"`
	// AutoCreateTopics makes the worker create its topics on startup.
	AutoCreateTopics  bool `mapstructure:"auto_create_topics"`
	NumPartitions     int  `mapstructure:"num_partitions"`
	ReplicationFactor int  `mapstructure:"replication_factor"`

	Security SecurityConfig `mapstructure:"security"`
}

// SecurityConfig enables SASL and TLS on broker connections.
type SecurityConfig struct {
	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	TLSCertPath   string `mapstructure:"tls_cert_path"`
}

// ConsumerConfig derives the request consumer settings.
func (c KafkaConfig) ConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:         c.Brokers,
		GroupID:         c.GroupID,
		Topics:          []string{c.RequestTopic},
		AutoOffsetReset: c.AutoOffsetReset,
		Security:        c.Security,
		RetryConfig: RetryConfig{
			MaxRetries:      c.MaxRetries,
			RetryBackoff:    c.RetryBackoff,
			DeadLetterTopic: c.DeadLetterTopic,
		},
	}
}

// ProducerConfig derives the result producer settings.
func (c KafkaConfig) ProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:          c.Brokers,
		CompressionCodec: c.Compression,
		Security:         c.Security,
	}
}

func (s SecurityConfig) validate() error {
	if s.SASLEnabled {
		if s.SASLMechanism == "" {
			return errors.New(errors.ErrCodeValidation, "sasl mechanism required")
		}
		if s.SASLUsername == "" || s.SASLPassword == "" {
			return errors.New(errors.ErrCodeValidation, "sasl credentials required")
		}
	}
	return nil
}

func (s SecurityConfig) mechanism() (sasl.Mechanism, error) {
	if !s.SASLEnabled {
		return nil, nil
	}
	switch s.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{Username: s.SASLUsername, Password: s.SASLPassword}, nil
	case "SCRAM-SHA-256":
		m, err := scram.Mechanism(scram.SHA256, s.SASLUsername, s.SASLPassword)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "create SASL mechanism")
		}
		return m, nil
	case "SCRAM-SHA-512":
		m, err := scram.Mechanism(scram.SHA512, s.SASLUsername, s.SASLPassword)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "create SASL mechanism")
		}
		return m, nil
	}
	return nil, errors.New(errors.ErrCodeValidation, "unsupported sasl mechanism").WithDetail(s.SASLMechanism)
}

func (s SecurityConfig) tlsConfig() (*tls.Config, error) {
	if !s.TLSEnabled {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.TLSCertPath == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(s.TLSCertPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "read kafka CA certificate").WithDetail(s.TLSCertPath)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New(errors.ErrCodeValidation, "no certificates in kafka CA file").WithDetail(s.TLSCertPath)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
