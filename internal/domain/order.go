package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа на маркетплейсе.
type OrderStatus string

const (
	// OrderStatusPending — заказ оформлен, товар зарезервирован, продавец ещё не подтвердил.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — продавец принял заказ.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing — заказ комплектуется.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен покупателем. Терминальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до отгрузки. Терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions — граф допустимых переходов. Всё, чего здесь нет, запрещено.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// Valid проверяет, что статус входит в список известных.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition проверяет ребро графа статусов from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod — способ оплаты, выбранный покупателем.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodMobileMoney    PaymentMethod = "mobile_money"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodMobileMoney, PaymentMethodCashOnDelivery:
		return true
	default:
		return false
	}
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment — сведения об оплате заказа.
type Payment struct {
	Method        PaymentMethod
	Status        PaymentStatus
	TransactionID string
	PaidAt        *time.Time
}

// Address — адрес доставки.
type Address struct {
	Name    string
	Phone   string
	Line1   string
	Line2   string
	City    string
	State   string
	Country string
	Zip     string
}

// Validate проверяет обязательные поля адреса. Line2 необязателен.
func (a Address) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"name", a.Name},
		{"phone", a.Phone},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"country", a.Country},
		{"zip", a.Zip},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: shipping address %s is required", ErrInvalidInput, r.field)
		}
	}
	return nil
}

// LineItem — снимок товара на момент оформления заказа. После создания не меняется.
type LineItem struct {
	ProductID   string
	ProductName string
	SellerID    string
	SellerName  string
	UnitPrice   decimal.Decimal
	Quantity    int
	Unit        string
	ImageURL    string
}

// LineTotal возвращает стоимость позиции без округления.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Pricing — итоговые суммы заказа.
type Pricing struct {
	Subtotal           decimal.Decimal
	Tax                decimal.Decimal
	ShippingCost       decimal.Decimal
	PlatformCommission decimal.Decimal
	TotalAmount        decimal.Decimal
}

// Commission — доля платформы с продаж одного продавца.
// Amount удерживается из Gross, продавцу причитается Payout.
type Commission struct {
	SellerID string
	Rate     decimal.Decimal
	Gross    decimal.Decimal
	Amount   decimal.Decimal
	Payout   decimal.Decimal
}

// Order агрегирует состояние заказа, его позиции и расчёты.
type Order struct {
	ID              string
	OrderNumber     string
	BuyerID         string
	Items           []LineItem
	Pricing         Pricing
	Commissions     []Commission
	ShippingAddress Address
	Payment         Payment
	Status          OrderStatus
	CancelReason    string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

// ApplyTransition переводит заказ в статус to и проставляет сопутствующие поля.
// Возвращает ErrInvalidTransition, если ребра from -> to нет; в этом случае заказ не меняется.
func (o *Order) ApplyTransition(to OrderStatus, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}

	stamp := now.UTC()
	switch to {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &stamp
	case OrderStatusShipped:
		o.ShippedAt = &stamp
	case OrderStatusDelivered:
		o.DeliveredAt = &stamp
		if o.Payment.Status != PaymentStatusCompleted {
			o.Payment.Status = PaymentStatusCompleted
			o.Payment.PaidAt = &stamp
		}
	case OrderStatusCancelled:
		o.CancelledAt = &stamp
	}

	o.Status = to
	o.UpdatedAt = stamp
	return nil
}

// HasSeller сообщает, продаёт ли sellerID хотя бы одну позицию заказа.
func (o *Order) HasSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// SellerIDs возвращает продавцов заказа в порядке первого появления.
func (o *Order) SellerIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	result := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		result = append(result, item.SellerID)
	}
	return result
}

// Clone возвращает глубокую копию, чтобы хранилища не делили срезы и указатели с вызывающим.
func (o Order) Clone() Order {
	dst := o
	dst.Items = append([]LineItem(nil), o.Items...)
	dst.Commissions = append([]Commission(nil), o.Commissions...)
	dst.Payment.PaidAt = cloneTime(o.Payment.PaidAt)
	dst.ConfirmedAt = cloneTime(o.ConfirmedAt)
	dst.ShippedAt = cloneTime(o.ShippedAt)
	dst.DeliveredAt = cloneTime(o.DeliveredAt)
	dst.CancelledAt = cloneTime(o.CancelledAt)
	return dst
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ValidateInvariants проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.BuyerID == "" {
		errs = append(errs, fmt.Errorf("%w: buyer is required", ErrInvalidInput))
	}
	if o.OrderNumber == "" {
		errs = append(errs, fmt.Errorf("%w: order number is required", ErrInvalidInput))
	}
	if !o.Status.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, o.Status))
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrEmptyOrder)
	}

	// Сверяем subtotal с суммой позиций: qty * price.
	subtotal := decimal.Zero
	for _, item := range o.Items {
		if item.Quantity < 1 {
			errs = append(errs, fmt.Errorf("%w: product %s quantity %d", ErrInvalidLineItem, item.ProductID, item.Quantity))
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, fmt.Errorf("%w: product %s negative price", ErrInvalidLineItem, item.ProductID))
		}
		subtotal = subtotal.Add(item.LineTotal())
	}

	p := o.Pricing
	for _, v := range []decimal.Decimal{p.Subtotal, p.Tax, p.ShippingCost, p.PlatformCommission, p.TotalAmount} {
		if v.IsNegative() {
			errs = append(errs, fmt.Errorf("%w: negative amount", ErrAmountMismatch))
			break
		}
	}
	if !subtotal.Equal(p.Subtotal) {
		errs = append(errs, fmt.Errorf("%w: subtotal %s, items %s", ErrAmountMismatch, p.Subtotal, subtotal))
	}
	if !p.Subtotal.Add(p.Tax).Add(p.ShippingCost).Equal(p.TotalAmount) {
		errs = append(errs, fmt.Errorf("%w: total %s", ErrAmountMismatch, p.TotalAmount))
	}

	errs = append(errs, o.validateCommissions()...)

	if o.Status == OrderStatusCancelled && o.CancelledAt == nil {
		errs = append(errs, fmt.Errorf("%w: cancelled order without cancelledAt", ErrInvalidInput))
	}
	if o.Status == OrderStatusDelivered && (o.DeliveredAt == nil || o.Payment.Status != PaymentStatusCompleted) {
		errs = append(errs, fmt.Errorf("%w: delivered order without delivery/payment stamps", ErrInvalidInput))
	}

	return errs
}

func (o *Order) validateCommissions() []error {
	sellers := o.SellerIDs()
	if len(sellers) != len(o.Commissions) {
		return []error{ErrCommissionMismatch}
	}

	var errs []error
	expected := make(map[string]struct{}, len(sellers))
	for _, s := range sellers {
		expected[s] = struct{}{}
	}
	total := decimal.Zero
	for _, c := range o.Commissions {
		if _, ok := expected[c.SellerID]; !ok {
			errs = append(errs, fmt.Errorf("%w: unexpected seller %s", ErrCommissionMismatch, c.SellerID))
		}
		delete(expected, c.SellerID)
		total = total.Add(c.Amount)
	}
	if !total.Equal(o.Pricing.PlatformCommission) {
		errs = append(errs, fmt.Errorf("%w: commissions sum %s, platform commission %s",
			ErrCommissionMismatch, total, o.Pricing.PlatformCommission))
	}
	return errs
}
