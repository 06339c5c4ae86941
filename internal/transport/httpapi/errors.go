package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

const kindUnauthenticated = "Unauthenticated"

// statusFor сопоставляет вид ошибки HTTP-статусу.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindEmptyOrder,
		domain.KindInvalidLineItem,
		domain.KindInvalidInput,
		domain.KindInsufficientStock,
		domain.KindInvalidTransition:
		return http.StatusBadRequest
	case domain.KindProductNotFound, domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNotAuthorized:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindPaymentDeclined:
		return http.StatusPaymentRequired
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse строит ответ на ошибку. Текст внутренних ошибок наружу не отдаётся.
func errorResponse(err error) (int, envelope) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	switch {
	case kind == domain.KindTimeout:
		message = "the store did not respond in time, retry later"
	case kind == domain.KindNotAuthorized:
		message = "you are not allowed to perform this action"
	case !domain.IsValidation(err):
		message = "internal error"
	}
	return status, envelope{Success: false, Message: message, Error: string(kind)}
}

// bindingError — тело запроса не разобралось или не прошло проверку тегов binding.
// Имена Go-типов и текст валидатора наружу не попадают.
func bindingError(err error) (int, envelope) {
	return http.StatusBadRequest, envelope{
		Success: false,
		Message: "invalid request: " + describeBindingError(err),
		Error:   string(domain.KindInvalidInput),
	}
}

// respondError пишет ответ на ошибку и логирует 5xx.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("route", c.FullPath()).Error("request failed")
	}
	c.JSON(status, body)
}
