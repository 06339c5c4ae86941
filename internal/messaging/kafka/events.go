package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderNotifications = "agro.order.notifications"
	TopicDeadLetterQueue    = "agro.dlq"
)

// Envelope — формат сообщения, которое видят потребители уведомлений.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение для публикации.
func NewEnvelope(event domain.OutboxMessage, now time.Time) Envelope {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   now.UTC(),
	}
}

// Key — ключ партиционирования: все события одного заказа попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DLQRecord — содержимое payload сообщения в DLQ, которое пишет outbox worker.
type DLQRecord struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error,omitempty"`
	DLQPublishedAt string          `json:"dlq_published_at,omitempty"`
}

// ReplayEnvelope восстанавливает исходный конверт из сообщения DLQ.
// ok=false означает, что сообщение не похоже на запись outbox и его надо пропустить.
func ReplayEnvelope(raw []byte, now time.Time) (Envelope, bool, error) {
	var outer Envelope
	if err := json.Unmarshal(raw, &outer); err != nil {
		return Envelope{}, false, nil
	}
	if len(outer.Payload) == 0 || string(outer.Payload) == "null" {
		return Envelope{}, false, nil
	}

	var record DLQRecord
	if err := json.Unmarshal(outer.Payload, &record); err != nil {
		return Envelope{}, false, fmt.Errorf("decode dlq record: %w", err)
	}
	if len(record.Payload) == 0 {
		return Envelope{}, false, fmt.Errorf("dlq record %s has no original payload", outer.ID)
	}

	return Envelope{
		ID:            firstNonEmpty(record.OutboxID, outer.ID),
		AggregateType: firstNonEmpty(record.AggregateType, outer.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, outer.AggregateID),
		EventType:     firstNonEmpty(record.EventType, outer.EventType),
		Payload:       record.Payload,
		PublishedAt:   now.UTC(),
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
