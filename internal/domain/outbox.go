package domain

import (
	"fmt"
	"time"
)

// OutboxStatus — состояние записи transactional outbox.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// PrepareOutboxMessage заполняет пустые поля перед записью в outbox.
// Payload копируется; пустой хранится как "{}".
func PrepareOutboxMessage(msg OutboxMessage, newID func() string, now time.Time) OutboxMessage {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	if len(msg.Payload) == 0 {
		msg.Payload = []byte("{}")
	} else {
		msg.Payload = append([]byte(nil), msg.Payload...)
	}
	return msg
}

// OutboxNotFound — ошибка смены статуса неизвестного сообщения.
func OutboxNotFound(id string) error {
	return fmt.Errorf("%w: outbox message %s not found", ErrOutboxPublish, id)
}
