package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	published := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope Envelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.AggregateID != "order-123" || envelope.EventType != domain.NotificationOrderPaid {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		if !envelope.PublishedAt.Equal(published) {
			return fmt.Errorf("unexpected published_at %s", envelope.PublishedAt)
		}
		if string(envelope.Payload) != `{"status":"confirmed"}` {
			return fmt.Errorf("unexpected payload %s", envelope.Payload)
		}
		return nil
	})

	publisher := NewOutboxPublisher(WrapSyncProducer(mockProducer, testLogger()), "")
	publisher.now = func() time.Time { return published }

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     domain.NotificationOrderPaid,
		Payload:       []byte(`{"status":"confirmed"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, TopicOrderNotifications, publisher.topic)

	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(WrapSyncProducer(mockProducer, testLogger()), TopicDeadLetterQueue)
	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:          "outbox-2",
		AggregateID: "order-234",
		EventType:   domain.NotificationOrderCancelled,
		Payload:     []byte(`{}`),
	})
	require.Error(t, err)

	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_CancelledContext(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	publisher := NewOutboxPublisher(WrapSyncProducer(mockProducer, testLogger()), "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := publisher.Publish(ctx, domain.OutboxMessage{ID: "outbox-3"})
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	var publisher *OutboxTopicPublisher
	require.Error(t, publisher.Publish(context.Background(), domain.OutboxMessage{}))
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	publisher := NewLogPublisher(testLogger())
	require.NoError(t, publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-4"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, publisher.Publish(ctx, domain.OutboxMessage{}), context.Canceled)
}
