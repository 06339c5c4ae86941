package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

const defaultPullLimit = 100

type outboxEntry struct {
	msg       domain.OutboxMessage
	status    domain.OutboxStatus
	attempts  int
	updatedAt time.Time
}

// OutboxRepository держит очередь уведомлений в памяти процесса.
type OutboxRepository struct {
	mu      sync.RWMutex
	entries map[string]*outboxEntry
	now     func() time.Time
}

// NewOutboxRepository создаёт пустой outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		entries: make(map[string]*outboxEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue ставит сообщение в очередь со статусом pending.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	now := r.now()
	msg = domain.PrepareOutboxMessage(msg, uuid.NewString, now)

	r.mu.Lock()
	r.entries[msg.ID] = &outboxEntry{msg: msg, status: domain.OutboxPending, updatedAt: now}
	r.mu.Unlock()
	return msg, nil
}

// PullPending отдаёт до limit самых старых pending-сообщений.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}
	pending := r.AllPending()
	return pending[:min(limit, len(pending))], nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	for _, msg := range r.AllPending() {
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = msg.CreatedAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.setStatus(id, domain.OutboxSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.setStatus(id, domain.OutboxFailed)
}

// AllPending возвращает pending-сообщения по возрастанию CreatedAt, затем ID.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	pending := make([]domain.OutboxMessage, 0, len(r.entries))
	for _, e := range r.entries {
		if e.status == domain.OutboxPending {
			pending = append(pending, e.msg)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(pending, func(a, b domain.OutboxMessage) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return pending
}

func (r *OutboxRepository) setStatus(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.OutboxNotFound(id)
	}
	e.status = status
	e.attempts++
	e.updatedAt = r.now()
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
