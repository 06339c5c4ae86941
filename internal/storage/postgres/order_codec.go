package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// Позиции, комиссии и адрес хранятся в JSONB. Суммы кодируются строкой, без потери точности.
type lineItemRecord struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	SellerID    string          `json:"seller_id"`
	SellerName  string          `json:"seller_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Unit        string          `json:"unit"`
	ImageURL    string          `json:"image_url,omitempty"`
}

type commissionRecord struct {
	SellerID string          `json:"seller_id"`
	Rate     decimal.Decimal `json:"rate"`
	Gross    decimal.Decimal `json:"gross"`
	Amount   decimal.Decimal `json:"amount"`
	Payout   decimal.Decimal `json:"payout"`
}

type addressRecord struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Zip     string `json:"zip"`
}

const orderColumns = `
	id, order_number, buyer_id, status, items, commissions, shipping_address,
	subtotal, tax, shipping_cost, platform_commission, total_amount,
	payment_method, payment_status, payment_transaction_id, paid_at,
	cancel_reason, version, created_at, updated_at,
	confirmed_at, shipped_at, delivered_at, cancelled_at`

type encodedOrder struct {
	items       []byte
	commissions []byte
	address     []byte
}

func encodeOrder(order domain.Order) (encodedOrder, error) {
	items := make([]lineItemRecord, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemRecord(item))
	}
	commissions := make([]commissionRecord, 0, len(order.Commissions))
	for _, c := range order.Commissions {
		commissions = append(commissions, commissionRecord(c))
	}

	var (
		enc encodedOrder
		err error
	)
	if enc.items, err = json.Marshal(items); err != nil {
		return encodedOrder{}, fmt.Errorf("encode order items: %w", err)
	}
	if enc.commissions, err = json.Marshal(commissions); err != nil {
		return encodedOrder{}, fmt.Errorf("encode order commissions: %w", err)
	}
	if enc.address, err = json.Marshal(addressRecord(order.ShippingAddress)); err != nil {
		return encodedOrder{}, fmt.Errorf("encode shipping address: %w", err)
	}
	return enc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                                       domain.Order
		status, paymentMethod, paymentStatus        string
		items, commissions, address                 []byte
		paidAt, confirmedAt, shippedAt, deliveredAt sql.NullTime
		cancelledAt                                 sql.NullTime
	)

	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.BuyerID, &status,
		&items, &commissions, &address,
		&order.Pricing.Subtotal, &order.Pricing.Tax, &order.Pricing.ShippingCost,
		&order.Pricing.PlatformCommission, &order.Pricing.TotalAmount,
		&paymentMethod, &paymentStatus, &order.Payment.TransactionID, &paidAt,
		&order.CancelReason, &order.Version, &order.CreatedAt, &order.UpdatedAt,
		&confirmedAt, &shippedAt, &deliveredAt, &cancelledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.Payment.Method = domain.PaymentMethod(paymentMethod)
	order.Payment.Status = domain.PaymentStatus(paymentStatus)
	order.Payment.PaidAt = nullTime(paidAt)
	order.ConfirmedAt = nullTime(confirmedAt)
	order.ShippedAt = nullTime(shippedAt)
	order.DeliveredAt = nullTime(deliveredAt)
	order.CancelledAt = nullTime(cancelledAt)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	var itemRecords []lineItemRecord
	if err := json.Unmarshal(items, &itemRecords); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s items: %w", order.ID, err)
	}
	order.Items = make([]domain.LineItem, 0, len(itemRecords))
	for _, item := range itemRecords {
		order.Items = append(order.Items, domain.LineItem(item))
	}

	var commissionRecords []commissionRecord
	if err := json.Unmarshal(commissions, &commissionRecords); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s commissions: %w", order.ID, err)
	}
	order.Commissions = make([]domain.Commission, 0, len(commissionRecords))
	for _, c := range commissionRecords {
		order.Commissions = append(order.Commissions, domain.Commission(c))
	}

	var addr addressRecord
	if err := json.Unmarshal(address, &addr); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s address: %w", order.ID, err)
	}
	order.ShippingAddress = domain.Address(addr)

	return order, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
