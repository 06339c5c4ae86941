package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что ответ сохранён и будет отдан повторно.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой хранилища; ключ можно занять снова.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит ответ на запрос с заголовком Idempotency-Key.
// Key уже включает идентификатор пользователя, поэтому ключи разных покупателей не пересекаются.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Replayable сообщает, что сохранённый ответ можно вернуть клиенту без повторной обработки.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status == IdempotencyStatusDone && r.HTTPStatus != 0
}

// Expired сообщает, что срок жизни ключа истёк к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !r.TTLAt.After(now)
}

// IdempotencyScopeKey привязывает клиентский ключ к пользователю и операции.
func IdempotencyScopeKey(actorID, operation, key string) string {
	return actorID + ":" + operation + ":" + key
}

// defaultIdempotencyTTL применяется, когда вызывающий не задал срок жизни ключа.
const defaultIdempotencyTTL = 24 * time.Hour

// NewIdempotencyClaim готовит запись processing для занятия ключа.
// Пустые ключ или отпечаток запроса недопустимы.
func NewIdempotencyClaim(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Reclaimable — ключ можно занять заново: срок истёк или прошлая обработка упала.
func (r IdempotencyRecord) Reclaimable(now time.Time) bool {
	return r.Expired(now) || r.Status == IdempotencyStatusFailed
}

// ClaimConflict объясняет, почему занятый ключ не удалось взять под запрос с отпечатком requestHash.
func (r IdempotencyRecord) ClaimConflict(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}
