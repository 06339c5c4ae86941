package domain

import (
	"context"
	"errors"
)

var (
	// ErrEmptyOrder — в заказе нет ни одной позиции.
	ErrEmptyOrder = errors.New("order must contain at least one item")
	// ErrInvalidLineItem — позиция с неположительным количеством, отрицательной ценой или без товара.
	ErrInvalidLineItem = errors.New("invalid line item")
	// ErrInvalidInput — прочие ошибки валидации входных данных (адрес, способ оплаты, ставки).
	ErrInvalidInput = errors.New("invalid input")
	// ErrProductNotFound — товар из заказа отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — запрошенное количество превышает остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition — смена статуса недостижима из текущего состояния.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotAuthorized — у вызывающего нет прав на операцию с заказом.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrPersistence — ошибка хранилища (сеть, ограничения, недоступность).
	ErrPersistence = errors.New("persistence failure")
	// ErrTimeout — обращение к хранилищу не уложилось в отведённое время.
	ErrTimeout = errors.New("store call timed out")
	// ErrReservationAnomaly — заказ сохранён, но резерв товара не выполнен; нужна ручная сверка.
	ErrReservationAnomaly = errors.New("order requires confirmation: stock reservation failed after persist")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderNumberTaken — номер заказа уже занят (коллизия генератора).
	ErrOrderNumberTaken = errors.New("order number already exists")
	// ErrAmountMismatch — итоговые суммы заказа не сходятся с позициями.
	ErrAmountMismatch = errors.New("order pricing does not reconcile with items")
	// ErrCommissionMismatch — комиссии не соответствуют продавцам позиций.
	ErrCommissionMismatch = errors.New("order commissions do not match item sellers")

	// ErrPaymentDeclined — платёж отклонён провайдером.
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentNotPending — оплата уже проведена или заказ закрыт.
	ErrPaymentNotPending = errors.New("payment is not pending")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// ErrorKind — машинно-стабильный код ошибки, который видит клиент API.
type ErrorKind string

const (
	KindEmptyOrder         ErrorKind = "EmptyOrder"
	KindInvalidLineItem    ErrorKind = "InvalidLineItem"
	KindInvalidInput       ErrorKind = "InvalidInput"
	KindProductNotFound    ErrorKind = "ProductNotFound"
	KindInsufficientStock  ErrorKind = "InsufficientStock"
	KindInvalidTransition  ErrorKind = "InvalidTransition"
	KindNotAuthorized      ErrorKind = "NotAuthorized"
	KindNotFound           ErrorKind = "NotFound"
	KindConflict           ErrorKind = "Conflict"
	KindPaymentDeclined    ErrorKind = "PaymentDeclined"
	KindPersistenceFailure ErrorKind = "PersistenceFailure"
	KindTimeout            ErrorKind = "Timeout"
)

// KindOf сводит ошибку к её виду. Неизвестные ошибки считаются PersistenceFailure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReservationAnomaly):
		return KindPersistenceFailure
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrEmptyOrder):
		return KindEmptyOrder
	case errors.Is(err, ErrInvalidLineItem):
		return KindInvalidLineItem
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrProductNotFound):
		return KindProductNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrPaymentNotPending):
		return KindInvalidTransition
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	case errors.Is(err, ErrOrderNotFound):
		return KindNotFound
	case errors.Is(err, ErrOrderVersionConflict),
		errors.Is(err, ErrOrderNumberTaken),
		errors.Is(err, ErrIdempotencyHashMismatch),
		errors.Is(err, ErrIdempotencyKeyAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrPaymentDeclined):
		return KindPaymentDeclined
	default:
		return KindPersistenceFailure
	}
}

// IsValidation сообщает, относится ли ошибка к клиентским (4xx) ошибкам.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindPersistenceFailure, KindTimeout, "":
		return false
	default:
		return true
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound проверяет, что заказ или товар не найден.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrProductNotFound)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
