package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

const (
	// Header — заголовок, в котором клиент передаёт ключ.
	Header     = "Idempotency-Key"
	defaultTTL = 24 * time.Hour
	maxKeyLen  = 128
)

// Response — готовый HTTP-ответ, который сохраняется и отдаётся при повторе.
type Response struct {
	Status int
	Body   []byte
}

// Guard выполняет запрос не больше одного раза на ключ.
// Ответы со статусом ниже 500 сохраняются и повторяются; после 5xx ключ можно занять снова.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт Guard поверх репозитория ключей.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = log.New().WithField("component", "idempotency")
	}
	return &Guard{repo: repo, ttl: ttl, logger: logger, now: time.Now}
}

// Execute запускает handler под ключом actorID:operation:key.
// Возвращает ErrIdempotencyHashMismatch, если ключ уже использован с другим телом,
// и ErrIdempotencyKeyAlreadyExists, если такой же запрос ещё выполняется.
func (g *Guard) Execute(
	ctx context.Context,
	actorID, operation, key string,
	body []byte,
	handler func(ctx context.Context) Response,
) (Response, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Response{}, false, domain.ErrIdempotencyKeyRequired
	}
	if len(key) > maxKeyLen {
		return Response{}, false, fmt.Errorf("%w: idempotency key longer than %d", domain.ErrInvalidInput, maxKeyLen)
	}

	scoped := domain.IdempotencyScopeKey(actorID, operation, key)
	hash := RequestHash(operation, body)

	record, err := g.repo.CreateProcessing(ctx, scoped, hash, g.now().UTC().Add(g.ttl))
	if err != nil {
		resp, replayErr := g.replay(err, record)
		return resp, replayErr == nil, replayErr
	}

	// Результат сохраняем даже если клиент уже отключился.
	storeCtx := context.WithoutCancel(ctx)

	finished := false
	defer func() {
		if finished {
			return
		}
		// handler запаниковал: освобождаем ключ, панику перехватит recovery выше по стеку.
		if err := g.repo.MarkFailed(storeCtx, scoped, nil, http.StatusInternalServerError); err != nil {
			g.logger.WithError(err).WithField("idempotency_key", scoped).Warn("failed to release idempotency key after panic")
		}
	}()

	resp := handler(ctx)
	finished = true
	if resp.Status >= http.StatusInternalServerError {
		if err := g.repo.MarkFailed(storeCtx, scoped, resp.Body, resp.Status); err != nil {
			g.logger.WithError(err).WithField("idempotency_key", scoped).Warn("failed to store idempotency failure")
		}
		return resp, false, nil
	}
	if err := g.repo.MarkDone(storeCtx, scoped, resp.Body, resp.Status); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", scoped).Warn("failed to store idempotent response")
	}
	return resp, false, nil
}

func (g *Guard) replay(createErr error, record domain.IdempotencyRecord) (Response, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Replayable() {
			return Response{Status: record.HTTPStatus, Body: record.ResponseBody}, nil
		}
		return Response{}, fmt.Errorf("%w: request is still being processed", domain.ErrIdempotencyKeyAlreadyExists)
	default:
		g.logger.WithError(createErr).Warn("failed to create idempotency record")
		return Response{}, fmt.Errorf("%w: idempotency: %w", domain.ErrPersistence, createErr)
	}
}

// RequestHash — отпечаток запроса: операция и тело.
func RequestHash(operation string, body []byte) string {
	payload := make([]byte, 0, len(operation)+1+len(body))
	payload = append(payload, operation...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
