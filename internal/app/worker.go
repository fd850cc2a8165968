package app

import (
	"context"

	"github.com/turtacn/lupa/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/lupa/internal/interfaces/http"
	"github.com/turtacn/lupa/internal/interfaces/http/handlers"
	"github.com/turtacn/lupa/internal/interfaces/http/middleware"
	"github.com/turtacn/lupa/internal/interfaces/worker"
	"github.com/turtacn/lupa/pkg/errors"
)

// RunWorker consumes match requests until ctx is done. The worker also
// serves the health probes and metrics on the configured HTTP address.
func (a *App) RunWorker(ctx context.Context) error {
	kc := a.Config.Kafka
	if !kc.Enabled {
		return errors.New(errors.ErrCodeValidation, "kafka is disabled; set kafka.enabled to run the worker")
	}

	if kc.AutoCreateTopics {
		tm, err := kafka.NewTopicManager(kc.Brokers, a.Logger)
		if err != nil {
			return err
		}
		err = tm.EnsureTopics(ctx, kafka.TopicsFor(kc))
		_ = tm.Close()
		if err != nil {
			return err
		}
	}

	producer, err := kafka.NewProducer(kc.ProducerConfig(), a.Logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	consumer, err := kafka.NewConsumer(kc.ConsumerConfig(), a.Logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	var recorder worker.MessageRecorder
	if a.Metrics != nil {
		recorder = a.Metrics
	}
	mw := worker.NewMatchWorker(a.Service, producer, worker.Config{
		RequestTopic: kc.RequestTopic,
		ResultTopic:  kc.ResultTopic,
		MaxInputs:    handlers.DefaultMaxBatchSize,
	}, recorder, a.Logger)
	mw.Register(consumer)

	a.Background(ctx)
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	a.Logger.Info("match worker running",
		logging.String("requests", kc.RequestTopic),
		logging.String("results", kc.ResultTopic))

	httpapi.SetMode(a.Config.Server.Mode)
	cfg := httpapi.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(Version, a.checkers...),
		Logger:        a.Logger,
		Logging:       middleware.LoggingConfig{SkipPaths: []string{"/healthz", "/readyz", a.Config.Metrics.Path}},
	}
	a.withMetrics(&cfg)
	return httpapi.NewServer(a.Config.Server, httpapi.NewRouter(cfg), a.Logger).Run(ctx)
}
