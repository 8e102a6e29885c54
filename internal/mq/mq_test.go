package mq

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload_RoundTrip(t *testing.T) {
	id := uuid.New()
	msg := NewMessage(MessageTypeJobStatus, JobStatusPayload{
		WorkflowID:  id,
		JobName:     "extract",
		Status:      domain.JobStatusCompleted,
		ExecutionID: 42,
	})

	// Как после доставки: payload приходит map'ом
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	var delivered Message
	require.NoError(t, json.Unmarshal(body, &delivered))

	payload, err := ParsePayload[JobStatusPayload](&delivered)
	require.NoError(t, err)
	assert.Equal(t, id, payload.WorkflowID)
	assert.Equal(t, "extract", payload.JobName)
	assert.Equal(t, domain.JobStatusCompleted, payload.Status)
	assert.Equal(t, int64(42), payload.ExecutionID)
	assert.Equal(t, MessageTypeJobStatus, delivered.Type)
}

func TestParsePayload_Invalid(t *testing.T) {
	msg := &Message{Type: MessageTypeWorkflowSubmitted, Payload: map[string]any{"workflow_id": "not-a-uuid"}}

	_, err := ParsePayload[WorkflowSubmittedPayload](msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.True(t, IsPermanent(err))
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	base := errors.New("boom")
	err := fmt.Errorf("handle: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

func TestTopology(t *testing.T) {
	exchanges, queues, bindings := topology()

	declared := make(map[Exchange]bool)
	for _, ex := range exchanges {
		declared[ex.name] = true
	}
	queueNames := make(map[Queue]bool)
	for _, q := range queues {
		queueNames[q.name] = true
	}

	// Каждая привязка ссылается на объявленные объекты
	for _, b := range bindings {
		assert.True(t, declared[b.exchange], b.exchange)
		assert.True(t, queueNames[b.queue], b.queue)
	}

	for _, q := range queues {
		if q.name == QueueDLQ {
			assert.Nil(t, q.args)
			continue
		}
		assert.Equal(t, string(ExchangeDLQ), q.args["x-dead-letter-exchange"], q.name)
	}

	assert.True(t, strings.Contains(TopologyInfo(), string(QueueJobsStatus)))
}

func TestOptions(t *testing.T) {
	c := &Connection{}
	for _, opt := range []Option{
		WithName("batchflow-test"),
		WithHeartbeat(5 * time.Second),
		WithMaxReconnectDelay(time.Minute),
	} {
		opt(c)
	}

	assert.Equal(t, "batchflow-test", c.name)
	assert.Equal(t, 5*time.Second, c.heartbeat)
	assert.Equal(t, time.Minute, c.maxDelay)
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := NewConsumer(nil, nil, ConsumerConfig{Queue: string(QueueJobsStatus)})
	assert.Equal(t, 1, c.prefetch)
	assert.NotNil(t, c.logger)

	// Stop до Start безопасен
	c.Stop()
}

func TestConnection_ClosedState(t *testing.T) {
	c := &Connection{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		closedCh:    make(chan struct{}),
		reconnected: make(chan struct{}),
	}
	assert.False(t, c.IsConnected())

	_, err := c.OpenChannel()
	assert.ErrorIs(t, err, ErrNoChannel)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.OpenChannel()
	assert.ErrorIs(t, err, ErrClosed)
}
