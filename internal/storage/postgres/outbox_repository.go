package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

const defaultOutboxPullLimit = 100

// OutboxRepository хранит уведомления в таблице outbox_messages.
type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{db: store.DB()}
}

// Enqueue записывает сообщение со статусом pending.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	now := time.Now().UTC()
	msg = domain.PrepareOutboxMessage(msg, uuid.NewString, now)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages
			(id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		string(domain.OutboxPending), msg.CreatedAt, now,
	)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue notification %s: %w", msg.EventType, err)
	}
	return msg, nil
}

// PullPending читает до limit самых старых pending-сообщений (индекс idx_outbox_pending).
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2`, string(domain.OutboxPending), limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending notifications: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pull pending notifications: %w", err)
	}
	return batch, nil
}

// Stats считает backlog одним агрегатом.
func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		count  int
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = $1`,
		string(domain.OutboxPending),
	).Scan(&count, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: count}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.OutboxSent)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.OutboxFailed)
}

func (r *OutboxRepository) setStatus(ctx context.Context, id string, status domain.OutboxStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var updated string
	err := r.db.QueryRowContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1
		RETURNING id`, id, string(status), time.Now().UTC(),
	).Scan(&updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.OutboxNotFound(id)
	case err != nil:
		return fmt.Errorf("set notification %s %s: %w", id, status, err)
	}
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
