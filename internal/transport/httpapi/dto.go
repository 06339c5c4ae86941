package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/service/lifecycle"
)

// envelope — общий формат ответов API.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// amount выводит деньги числом с двумя знаками после запятой.
type amount decimal.Decimal

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).StringFixed(2)), nil
}

// rate выводит ставку числом без округления.
type rate decimal.Decimal

func (r rate) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(r).String()), nil
}

type itemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type addressDTO struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
	Line1   string `json:"line1" binding:"required"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city" binding:"required"`
	State   string `json:"state" binding:"required"`
	Country string `json:"country" binding:"required"`
	Zip     string `json:"zip" binding:"required"`
}

// createOrderRequest — тело POST /orders. Позиции проверяет движок,
// чтобы клиент получил точный вид ошибки (EmptyOrder, InvalidLineItem).
type createOrderRequest struct {
	Items           []itemRequest    `json:"items"`
	ShippingAddress addressDTO       `json:"shipping_address" binding:"required"`
	PaymentMethod   string           `json:"payment_method" binding:"required"`
	ShippingCost    *decimal.Decimal `json:"shipping_cost,omitempty"`
}

func (r createOrderRequest) toInput() lifecycle.CreateOrderInput {
	reqs := make([]lifecycle.ItemRequest, len(r.Items))
	for i, item := range r.Items {
		reqs[i] = lifecycle.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return lifecycle.CreateOrderInput{
		Items:           reqs,
		ShippingAddress: domain.Address(r.ShippingAddress),
		PaymentMethod:   domain.PaymentMethod(r.PaymentMethod),
		ShippingCost:    r.ShippingCost,
	}
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type listQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"min=0"`
	Offset int    `form:"offset" binding:"min=0"`
}

func (q listQuery) filter() domain.OrderListFilter {
	return domain.OrderListFilter{
		Status: domain.OrderStatus(q.Status),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
}

type lineItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	SellerID    string `json:"seller_id"`
	SellerName  string `json:"seller_name"`
	UnitPrice   amount `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Unit        string `json:"unit,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	LineTotal   amount `json:"line_total"`
}

type pricingResponse struct {
	Subtotal           amount `json:"subtotal"`
	Tax                amount `json:"tax"`
	ShippingCost       amount `json:"shipping_cost"`
	PlatformCommission amount `json:"platform_commission"`
	TotalAmount        amount `json:"total_amount"`
}

type commissionResponse struct {
	SellerID string `json:"seller_id"`
	Rate     rate   `json:"rate"`
	Gross    amount `json:"gross"`
	Amount   amount `json:"amount"`
	Payout   amount `json:"payout"`
}

type paymentResponse struct {
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type orderResponse struct {
	ID              string               `json:"id"`
	OrderNumber     string               `json:"order_number"`
	BuyerID         string               `json:"buyer_id"`
	Items           []lineItemResponse   `json:"items"`
	Pricing         pricingResponse      `json:"pricing"`
	Commissions     []commissionResponse `json:"commissions"`
	ShippingAddress addressDTO           `json:"shipping_address"`
	Payment         paymentResponse      `json:"payment"`
	Status          string               `json:"status"`
	CancelReason    string               `json:"cancel_reason,omitempty"`
	Version         int64                `json:"version"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	ConfirmedAt     *time.Time           `json:"confirmed_at,omitempty"`
	ShippedAt       *time.Time           `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time           `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
}

func newOrderResponse(order domain.Order) orderResponse {
	items := make([]lineItemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = lineItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			SellerID:    item.SellerID,
			SellerName:  item.SellerName,
			UnitPrice:   amount(item.UnitPrice),
			Quantity:    item.Quantity,
			Unit:        item.Unit,
			ImageURL:    item.ImageURL,
			LineTotal:   amount(item.LineTotal()),
		}
	}
	commissions := make([]commissionResponse, len(order.Commissions))
	for i, c := range order.Commissions {
		commissions[i] = commissionResponse{
			SellerID: c.SellerID,
			Rate:     rate(c.Rate),
			Gross:    amount(c.Gross),
			Amount:   amount(c.Amount),
			Payout:   amount(c.Payout),
		}
	}

	return orderResponse{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		Items:       items,
		Pricing: pricingResponse{
			Subtotal:           amount(order.Pricing.Subtotal),
			Tax:                amount(order.Pricing.Tax),
			ShippingCost:       amount(order.Pricing.ShippingCost),
			PlatformCommission: amount(order.Pricing.PlatformCommission),
			TotalAmount:        amount(order.Pricing.TotalAmount),
		},
		Commissions:     commissions,
		ShippingAddress: addressDTO(order.ShippingAddress),
		Payment: paymentResponse{
			Method:        string(order.Payment.Method),
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			PaidAt:        order.Payment.PaidAt,
		},
		Status:       string(order.Status),
		CancelReason: order.CancelReason,
		Version:      order.Version,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
		ConfirmedAt:  order.ConfirmedAt,
		ShippedAt:    order.ShippedAt,
		DeliveredAt:  order.DeliveredAt,
		CancelledAt:  order.CancelledAt,
	}
}

func newOrderListResponse(orders []domain.Order) []orderResponse {
	result := make([]orderResponse, len(orders))
	for i := range orders {
		result[i] = newOrderResponse(orders[i])
	}
	return result
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Status   string    `json:"status,omitempty"`
	ActorID  string    `json:"actor_id,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

func newTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	result := make([]timelineEventResponse, len(events))
	for i, event := range events {
		result[i] = timelineEventResponse{
			Type:     event.Type,
			Status:   string(event.Status),
			ActorID:  event.ActorID,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		}
	}
	return result
}

type sellerSummaryResponse struct {
	SellerID        string `json:"seller_id"`
	DeliveredOrders int    `json:"delivered_orders"`
	OpenOrders      int    `json:"open_orders"`
	CancelledOrders int    `json:"cancelled_orders"`
	Gross           amount `json:"gross"`
	Commission      amount `json:"commission"`
	Payout          amount `json:"payout"`
}

func newSellerSummaryResponse(s lifecycle.SellerSummary) sellerSummaryResponse {
	return sellerSummaryResponse{
		SellerID:        s.SellerID,
		DeliveredOrders: s.DeliveredOrders,
		OpenOrders:      s.OpenOrders,
		CancelledOrders: s.CancelledOrders,
		Gross:           amount(s.Gross),
		Commission:      amount(s.Commission),
		Payout:          amount(s.Payout),
	}
}
