// Package worker consumes match requests from Kafka and publishes their
// results.
package worker

import (
	"context"
	"time"

	"github.com/turtacn/lupa/internal/application/extraction"
	"github.com/turtacn/lupa/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/pkg/errors"
)

// Event types carried in the envelope.
const (
	EventMatchRequested = "match.requested"
	EventMatchCompleted = "match.completed"
	EventMatchFailed    = "match.failed"
)

const defaultSource = "lupa-worker"

// MatchRequest is the payload of a match.requested event.
type MatchRequest struct {
	Inputs []*extraction.MatchInput `json:"inputs"`
}

// MatchResponse is the payload of match.completed and match.failed events.
// Results follow the order of the request inputs.
type MatchResponse struct {
	RequestEventID string                    `json:"request_event_id"`
	Results        []*extraction.MatchResult `json:"results,omitempty"`
	Error          *ErrorPayload             `json:"error,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Subscriber is the subset of kafka.Consumer the worker registers with.
type Subscriber interface {
	Subscribe(topic string, handler kafka.MessageHandler)
}

// MessageRecorder receives per-message measurements.
type MessageRecorder interface {
	RecordMessage(topic string, err error, d time.Duration)
}

// Config names the topics the worker reads and writes.
type Config struct {
	RequestTopic string
	ResultTopic  string
	// Source is stamped on published envelopes.
	Source string
	// MaxInputs bounds the inputs of a single request. Zero means no limit.
	MaxInputs int
}

// MatchWorker runs match requests through the extraction service.
type MatchWorker struct {
	svc       extraction.Service
	publisher kafka.Publisher
	cfg       Config
	metrics   MessageRecorder
	logger    logging.Logger
}

func NewMatchWorker(svc extraction.Service, publisher kafka.Publisher, cfg Config, metrics MessageRecorder, log logging.Logger) *MatchWorker {
	if cfg.RequestTopic == "" {
		cfg.RequestTopic = kafka.TopicMatchRequests
	}
	if cfg.ResultTopic == "" {
		cfg.ResultTopic = kafka.TopicMatchResults
	}
	if cfg.Source == "" {
		cfg.Source = defaultSource
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &MatchWorker{svc: svc, publisher: publisher, cfg: cfg, metrics: metrics, logger: log.Named("match_worker")}
}

// Register subscribes the worker to its request topic.
func (w *MatchWorker) Register(s Subscriber) {
	s.Subscribe(w.cfg.RequestTopic, w.Handle)
}

// Handle processes one request message. Requests that can never succeed
// (bad envelopes, invalid input) are answered with a match.failed event and
// acknowledged. Other failures are returned so the consumer retries them.
func (w *MatchWorker) Handle(ctx context.Context, msg *kafka.Message) (err error) {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.RecordMessage(msg.Topic, err, time.Since(start))
		}
	}()

	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		w.logger.Warn("dropping undecodable message", logging.String("topic", msg.Topic), logging.Int64("offset", msg.Offset), logging.Err(err))
		return nil
	}
	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = env.EventID
	}
	log := w.logger.With(logging.String("event_id", env.EventID), logging.String("correlation_id", correlationID))

	if env.EventType != EventMatchRequested {
		log.Debug("ignoring event", logging.String("event_type", env.EventType))
		return nil
	}

	var req MatchRequest
	if err := env.DecodePayload(&req); err != nil {
		return w.fail(ctx, env.EventID, correlationID, err)
	}
	if len(req.Inputs) == 0 {
		return w.fail(ctx, env.EventID, correlationID, errors.New(errors.ErrCodeValidation, "request has no inputs"))
	}
	if w.cfg.MaxInputs > 0 && len(req.Inputs) > w.cfg.MaxInputs {
		return w.fail(ctx, env.EventID, correlationID,
			errors.Newf(errors.ErrCodeValidation, "request of %d inputs exceeds limit %d", len(req.Inputs), w.cfg.MaxInputs))
	}

	results, err := w.svc.MatchBatch(ctx, req.Inputs)
	if err != nil {
		if errors.IsValidation(err) || errors.IsNotFound(err) {
			return w.fail(ctx, env.EventID, correlationID, err)
		}
		log.Warn("match request failed", logging.Err(err))
		return err
	}

	if err := w.publish(ctx, EventMatchCompleted, correlationID, &MatchResponse{RequestEventID: env.EventID, Results: results}); err != nil {
		return err
	}
	log.Debug("match request completed", logging.Int("inputs", len(req.Inputs)))
	return nil
}

func (w *MatchWorker) fail(ctx context.Context, eventID, correlationID string, cause error) error {
	w.logger.Info("rejecting match request", logging.String("event_id", eventID), logging.Err(cause))
	resp := &MatchResponse{
		RequestEventID: eventID,
		Error:          &ErrorPayload{Code: errors.GetCode(cause).String(), Message: cause.Error()},
	}
	return w.publish(ctx, EventMatchFailed, correlationID, resp)
}

func (w *MatchWorker) publish(ctx context.Context, eventType, correlationID string, resp *MatchResponse) error {
	env, err := kafka.NewEventEnvelope(eventType, w.cfg.Source, resp)
	if err != nil {
		return err
	}
	env.CorrelationID = correlationID
	msg, err := env.ToMessage(w.cfg.ResultTopic)
	if err != nil {
		return err
	}
	if err := w.publisher.Publish(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessagingError, "publish match result").WithDetail(w.cfg.ResultTopic)
	}
	return nil
}
