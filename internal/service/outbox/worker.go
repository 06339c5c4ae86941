// Package outbox доставляет уведомления о заказах из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultStoreTimeout   = 3 * time.Second

	maxRetryDelay = time.Minute
)

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithMetrics подключает метрики публикации и backlog.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDLQPublisher — куда отправлять уведомление после исчерпания попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

// WithBatchSize ограничивает число сообщений за один цикл.
func WithBatchSize(size int) Option {
	return func(w *Worker) { w.batchSize = size }
}

// WithMaxAttempts задаёт число попыток публикации одного сообщения.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) { w.maxAttempts = attempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = delay }
}

// WithStoreTimeout ограничивает каждое обращение к хранилищу outbox.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(w *Worker) { w.storeTimeout = timeout }
}

// Worker публикует pending-уведомления из outbox.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry
	metrics   *metrics.OutboxMetrics
	now       func() time.Time

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	storeTimeout   time.Duration
}

// BatchResult — итог одного цикла.
type BatchResult struct {
	Sent   int
	Failed int
}

// deadLetter — payload сообщения в DLQ. Формат читает cmd/dlq-replay.
type deadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

// NewWorker создаёт outbox worker. Некорректные значения опций заменяются значениями по умолчанию.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		now:            time.Now,
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		storeTimeout:   defaultStoreTimeout,
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.New().WithField("component", "outbox-worker")
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	w.retryBaseDelay = max(w.retryBaseDelay, 0)
	if w.storeTimeout <= 0 {
		w.storeTimeout = defaultStoreTimeout
	}
	return w
}

// Run опрашивает outbox до отмены ctx. Первый цикл выполняется сразу.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repository or publisher is missing")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает пачку pending-сообщений и публикует их по очереди.
// Сообщение, не доставленное за maxAttempts, уходит в DLQ и помечается failed.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}
	defer w.refreshBacklog(ctx)

	var batch []domain.OutboxMessage
	err := w.store(ctx, func(ctx context.Context) error {
		var err error
		batch, err = w.repo.PullPending(ctx, w.batchSize)
		return err
	})
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending notifications")
		return result
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		if w.deliver(ctx, msg) {
			result.Sent++
		} else {
			result.Failed++
		}
	}
	if len(batch) > 0 {
		w.logger.WithFields(log.Fields{
			"sent":   result.Sent,
			"failed": result.Failed,
		}).Debug("outbox batch processed")
	}
	return result
}

// deliver публикует одно сообщение и фиксирует исход в хранилище.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) bool {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":         msg.ID,
		"order_id":          msg.AggregateID,
		"notification_type": msg.EventType,
	})

	publishErr := w.publishWithRetry(ctx, msg)
	if publishErr == nil {
		if err := w.store(ctx, func(ctx context.Context) error { return w.repo.MarkSent(ctx, msg.ID) }); err != nil {
			entry.WithError(err).Warn("notification published but not marked as sent")
		}
		return true
	}
	if ctx.Err() != nil {
		// Остановка воркера: сообщение останется pending до следующего запуска.
		return false
	}

	entry.WithError(publishErr).Error("notification publish failed after retries")
	w.record("failed")
	if err := w.sendToDLQ(ctx, msg, publishErr); err != nil {
		entry.WithError(err).Warn("failed to publish notification to DLQ")
		w.record("dlq_failed")
	}
	if err := w.store(ctx, func(ctx context.Context) error { return w.repo.MarkFailed(ctx, msg.ID) }); err != nil {
		entry.WithError(err).Warn("failed to mark notification as failed")
	}
	return false
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := pause(ctx, w.retryBackoff(attempt-1)); err != nil {
				return err
			}
		}
		if lastErr = w.publisher.Publish(ctx, msg); lastErr == nil {
			w.record("sent")
			return nil
		}
		w.record("retry_error")
	}
	return fmt.Errorf("%w: %d attempts: %w", domain.ErrOutboxPublish, w.maxAttempts, lastErr)
}

// retryBackoff — пауза после попытки attempt: base, 2*base, 4*base, не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func (w *Worker) sendToDLQ(ctx context.Context, msg domain.OutboxMessage, publishErr error) error {
	if w.dlq == nil {
		return nil
	}

	payload, err := json.Marshal(deadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        json.RawMessage(msg.Payload),
		PublishError:   publishErr.Error(),
		DLQPublishedAt: w.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	dead := msg
	dead.Payload = payload
	if err := w.dlq.Publish(ctx, dead); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	if w.metrics == nil || ctx.Err() != nil {
		return
	}

	var stats domain.OutboxStats
	err := w.store(ctx, func(ctx context.Context) error {
		var err error
		stats, err = w.repo.Stats(ctx)
		return err
	})
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}

func (w *Worker) record(result string) {
	w.metrics.RecordPublish(result)
}

func (w *Worker) store(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, w.storeTimeout)
	defer cancel()
	return fn(callCtx)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
