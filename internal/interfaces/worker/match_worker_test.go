package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lupa/internal/application/extraction"
	"github.com/turtacn/lupa/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/lupa/internal/testutil"
	"github.com/turtacn/lupa/pkg/errors"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*kafka.ProducerMessage
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg *kafka.ProducerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeRecorder struct {
	ok, failed int
}

func (r *fakeRecorder) RecordMessage(_ string, err error, _ time.Duration) {
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

type fakeSubscriber struct {
	topics map[string]kafka.MessageHandler
}

func (s *fakeSubscriber) Subscribe(topic string, h kafka.MessageHandler) {
	if s.topics == nil {
		s.topics = map[string]kafka.MessageHandler{}
	}
	s.topics[topic] = h
}

// brokenService fails every match with a server-side error.
type brokenService struct {
	extraction.Service
}

func (brokenService) MatchBatch(context.Context, []*extraction.MatchInput) ([]*extraction.MatchResult, error) {
	return nil, errors.New(errors.ErrCodeBuiltinFailure, "recognizer crashed")
}

func newService(t *testing.T, cfg extraction.Config) extraction.Service {
	t.Helper()
	svc := extraction.NewService(extraction.StaticSource(testutil.GreetingModel()), cfg, nil)
	require.NoError(t, svc.Reload(context.Background()))
	return svc
}

func requestMessage(t *testing.T, eventType, correlationID string, payload interface{}) *kafka.Message {
	t.Helper()
	env, err := kafka.NewEventEnvelope(eventType, "test", payload)
	require.NoError(t, err)
	env.CorrelationID = correlationID
	pm, err := env.ToMessage(kafka.TopicMatchRequests)
	require.NoError(t, err)
	return &kafka.Message{Topic: pm.Topic, Key: pm.Key, Value: pm.Value, Headers: pm.Headers}
}

func decodeResponse(t *testing.T, msg *kafka.ProducerMessage) (*kafka.EventEnvelope, *MatchResponse) {
	t.Helper()
	env, err := kafka.MessageToEventEnvelope(&kafka.Message{Topic: msg.Topic, Value: msg.Value})
	require.NoError(t, err)
	var resp MatchResponse
	require.NoError(t, env.DecodePayload(&resp))
	return env, &resp
}

func TestMatchWorker_Register(t *testing.T) {
	w := NewMatchWorker(nil, &fakePublisher{}, Config{}, nil, nil)
	sub := &fakeSubscriber{}
	w.Register(sub)
	assert.Contains(t, sub.topics, kafka.TopicMatchRequests)
}

func TestMatchWorker_Completed(t *testing.T) {
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	w := NewMatchWorker(newService(t, extraction.Config{}), pub, Config{}, rec, testutil.NewMockLogger())

	msg := requestMessage(t, EventMatchRequested, "corr-1", MatchRequest{Inputs: []*extraction.MatchInput{
		{Text: "hello there"},
		{Text: "red car"},
	}})
	require.NoError(t, w.Handle(context.Background(), msg))

	require.Len(t, pub.msgs, 1)
	out := pub.msgs[0]
	assert.Equal(t, kafka.TopicMatchResults, out.Topic)
	assert.Equal(t, []byte("corr-1"), out.Key)
	assert.Equal(t, EventMatchCompleted, out.Headers[kafka.HeaderEventType])

	env, resp := decodeResponse(t, out)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.Equal(t, defaultSource, env.Source)
	assert.Nil(t, resp.Error)
	require.Len(t, resp.Results, 2)
	require.Len(t, resp.Results[0].Entities, 1)
	assert.Equal(t, "greeting", resp.Results[0].Entities[0].Type)
	assert.Len(t, resp.Results[1].Entities, 3)
	assert.Equal(t, 1, rec.ok)
}

func TestMatchWorker_CorrelationDefaultsToEventID(t *testing.T) {
	pub := &fakePublisher{}
	w := NewMatchWorker(newService(t, extraction.Config{}), pub, Config{}, nil, nil)

	msg := requestMessage(t, EventMatchRequested, "", MatchRequest{Inputs: []*extraction.MatchInput{{Text: "hi"}}})
	require.NoError(t, w.Handle(context.Background(), msg))

	require.Len(t, pub.msgs, 1)
	env, resp := decodeResponse(t, pub.msgs[0])
	assert.Equal(t, resp.RequestEventID, env.CorrelationID)
}

func TestMatchWorker_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		cfg      extraction.Config
		payload  interface{}
		maxInput int
		wantCode errors.ErrorCode
	}{
		{"no inputs", extraction.Config{}, MatchRequest{}, 0, errors.ErrCodeValidation},
		{"too many inputs", extraction.Config{}, MatchRequest{Inputs: []*extraction.MatchInput{{Text: "a"}, {Text: "b"}}}, 1, errors.ErrCodeValidation},
		{"text too long", extraction.Config{MaxTextLength: 3}, MatchRequest{Inputs: []*extraction.MatchInput{{Text: "hello there"}}}, 0, errors.ErrCodeValidation},
		{"bad payload", extraction.Config{}, []int{1, 2}, 0, errors.ErrCodeSerialization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			w := NewMatchWorker(newService(t, tt.cfg), pub, Config{MaxInputs: tt.maxInput}, nil, nil)

			require.NoError(t, w.Handle(context.Background(), requestMessage(t, EventMatchRequested, "c", tt.payload)))
			require.Len(t, pub.msgs, 1)
			assert.Equal(t, EventMatchFailed, pub.msgs[0].Headers[kafka.HeaderEventType])
			_, resp := decodeResponse(t, pub.msgs[0])
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode.String(), resp.Error.Code)
		})
	}
}

func TestMatchWorker_ServerErrorIsRetried(t *testing.T) {
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	w := NewMatchWorker(brokenService{}, pub, Config{}, rec, nil)

	err := w.Handle(context.Background(), requestMessage(t, EventMatchRequested, "c", MatchRequest{Inputs: []*extraction.MatchInput{{Text: "hi"}}}))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBuiltinFailure))
	assert.Empty(t, pub.msgs)
	assert.Equal(t, 1, rec.failed)
}

func TestMatchWorker_PublishFailure(t *testing.T) {
	pub := &fakePublisher{err: fmt.Errorf("broker down")}
	w := NewMatchWorker(newService(t, extraction.Config{}), pub, Config{}, nil, nil)

	err := w.Handle(context.Background(), requestMessage(t, EventMatchRequested, "c", MatchRequest{Inputs: []*extraction.MatchInput{{Text: "hi"}}}))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessagingError))
}

func TestMatchWorker_IgnoresOtherMessages(t *testing.T) {
	pub := &fakePublisher{}
	log := testutil.NewMockLogger()
	w := NewMatchWorker(newService(t, extraction.Config{}), pub, Config{}, nil, log)

	require.NoError(t, w.Handle(context.Background(), &kafka.Message{Topic: kafka.TopicMatchRequests, Value: []byte("not json")}))
	assert.True(t, log.HasMessage("warn", "dropping undecodable message"))

	require.NoError(t, w.Handle(context.Background(), requestMessage(t, "model.updated", "", map[string]string{"a": "b"})))
	assert.Empty(t, pub.msgs)
}

func TestMatchResponse_JSONShape(t *testing.T) {
	data, err := json.Marshal(MatchResponse{RequestEventID: "e1", Error: &ErrorPayload{Code: "LUPA_001", Message: "x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"request_event_id":"e1","error":{"code":"LUPA_001","message":"x"}}`, string(data))
}
