package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/service/idempotency"
	"github.com/vladislavdragonenkov/agromarket/internal/service/lifecycle"
)

const (
	operationCreateOrder = "create_order"
	headerReplayed       = "Idempotent-Replayed"
)

// OrderService — операции движка заказов, которые нужны REST-слою.
type OrderService interface {
	CreateOrder(ctx context.Context, actor domain.Actor, in lifecycle.CreateOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListBuyerOrders(ctx context.Context, actor domain.Actor, filter domain.OrderListFilter) ([]domain.Order, error)
	ListSellerOrders(ctx context.Context, actor domain.Actor, filter domain.OrderListFilter) ([]domain.Order, error)
	ListAllOrders(ctx context.Context, actor domain.Actor, filter domain.OrderListFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, actor domain.Actor, orderID string, target domain.OrderStatus) (domain.Order, error)
	Cancel(ctx context.Context, actor domain.Actor, orderID, reason string) (domain.Order, error)
	PayOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error)
	SellerSummary(ctx context.Context, actor domain.Actor) (lifecycle.SellerSummary, error)
}

// Handler обслуживает /orders.
type Handler struct {
	orders OrderService
	guard  *idempotency.Guard
	logger *log.Entry
}

// NewHandler создаёт обработчики заказов. guard может быть nil: тогда Idempotency-Key игнорируется.
func NewHandler(orders OrderService, guard *idempotency.Guard, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Handler{orders: orders, guard: guard, logger: logger}
}

// CreateOrder — POST /orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(bindingError(err))
		return
	}

	actor := actorFrom(c)
	key := c.GetHeader(idempotency.Header)
	if key == "" || h.guard == nil {
		status, resp := h.placeOrder(c.Request.Context(), actor, body)
		c.JSON(status, resp)
		return
	}

	resp, replayed, err := h.guard.Execute(c.Request.Context(), actor.ID, operationCreateOrder, key, body,
		func(ctx context.Context) idempotency.Response {
			status, payload := h.placeOrder(ctx, actor, body)
			encoded, err := json.Marshal(payload)
			if err != nil {
				h.logger.WithError(err).Error("encode create order response")
				return idempotency.Response{Status: http.StatusInternalServerError}
			}
			return idempotency.Response{Status: status, Body: encoded}
		})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if replayed {
		c.Header(headerReplayed, "true")
	}
	c.Data(resp.Status, binding.MIMEJSON+"; charset=utf-8", resp.Body)
}

// placeOrder разбирает тело и оформляет заказ; результат можно сохранить для повтора.
func (h *Handler) placeOrder(ctx context.Context, actor domain.Actor, body []byte) (int, envelope) {
	var req createOrderRequest
	if err := decodeJSON(body, &req); err != nil {
		return bindingError(err)
	}

	order, err := h.orders.CreateOrder(ctx, actor, req.toInput())
	if err != nil {
		var anomaly *lifecycle.ReservationAnomalyError
		if errors.As(err, &anomaly) {
			return http.StatusAccepted, envelope{
				Success: false,
				Message: fmt.Sprintf("order %s requires confirmation: stock could not be reserved", anomaly.Order.OrderNumber),
				Error:   string(domain.KindPersistenceFailure),
				Data:    newOrderResponse(anomaly.Order),
			}
		}
		status, resp := errorResponse(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithError(err).WithField("actor_id", actor.ID).Error("create order failed")
		}
		return status, resp
	}
	return http.StatusCreated, envelope{Success: true, Data: newOrderResponse(order)}
}

// GetOrder — GET /orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newOrderResponse(order)})
}

// ListMyOrders — GET /orders.
func (h *Handler) ListMyOrders(c *gin.Context) {
	h.list(c, h.orders.ListBuyerOrders)
}

// ListSellerOrders — GET /orders/seller/me.
func (h *Handler) ListSellerOrders(c *gin.Context) {
	h.list(c, h.orders.ListSellerOrders)
}

// ListAllOrders — GET /orders/admin/all.
func (h *Handler) ListAllOrders(c *gin.Context) {
	h.list(c, h.orders.ListAllOrders)
}

func (h *Handler) list(
	c *gin.Context,
	fetch func(ctx context.Context, actor domain.Actor, filter domain.OrderListFilter) ([]domain.Order, error),
) {
	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(bindingError(err))
		return
	}
	orders, err := fetch(c.Request.Context(), actorFrom(c), query.filter())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newOrderListResponse(orders)})
}

// UpdateStatus — PUT /orders/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	body, err := c.GetRawData()
	if err == nil {
		err = decodeJSON(body, &req)
	}
	if err != nil {
		c.JSON(bindingError(err))
		return
	}
	order, err := h.orders.UpdateStatus(c.Request.Context(), actorFrom(c), c.Param("id"), domain.OrderStatus(req.Status))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newOrderResponse(order)})
}

// CancelOrder — PUT /orders/:id/cancel. Тело необязательно, в том числе пустое chunked.
func (h *Handler) CancelOrder(c *gin.Context) {
	var req cancelRequest
	body, err := c.GetRawData()
	if err == nil && len(bytes.TrimSpace(body)) > 0 {
		err = decodeJSON(body, &req)
	}
	if err != nil {
		c.JSON(bindingError(err))
		return
	}
	order, err := h.orders.Cancel(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newOrderResponse(order)})
}

// PayOrder — PUT /orders/:id/pay. Отклонённый платёж возвращает 402 вместе с заказом.
func (h *Handler) PayOrder(c *gin.Context) {
	order, err := h.orders.PayOrder(c.Request.Context(), actorFrom(c), c.Param("id"))
	switch {
	case errors.Is(err, domain.ErrPaymentDeclined) && order.ID != "":
		c.JSON(http.StatusPaymentRequired, envelope{
			Success: false,
			Message: err.Error(),
			Error:   string(domain.KindPaymentDeclined),
			Data:    newOrderResponse(order),
		})
	case err != nil:
		h.respondError(c, err)
	default:
		c.JSON(http.StatusOK, envelope{Success: true, Data: newOrderResponse(order)})
	}
}

// Timeline — GET /orders/:id/timeline.
func (h *Handler) Timeline(c *gin.Context) {
	events, err := h.orders.Timeline(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newTimelineResponse(events)})
}

// SellerSummary — GET /orders/seller/me/summary.
func (h *Handler) SellerSummary(c *gin.Context) {
	summary, err := h.orders.SellerSummary(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: newSellerSummaryResponse(summary)})
}
