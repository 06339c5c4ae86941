package lifecycle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	summaryPageSize  = maxListLimit
)

// SellerSummary — сводка продаж продавца. Деньги считаются по доставленным заказам:
// Gross — выручка продавца, Commission — удержание платформы, Payout — к выплате.
type SellerSummary struct {
	SellerID        string
	DeliveredOrders int
	OpenOrders      int
	CancelledOrders int
	Gross           decimal.Decimal
	Commission      decimal.Decimal
	Payout          decimal.Decimal
}

// GetOrder возвращает заказ покупателю, продавцу одной из позиций или админу.
func (e *Engine) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := e.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.CanView(&order) {
		return domain.Order{}, domain.ErrNotAuthorized
	}
	return order, nil
}

// ListBuyerOrders возвращает заказы вызывающего как покупателя.
func (e *Engine) ListBuyerOrders(ctx context.Context, actor domain.Actor, filter domain.OrderListFilter) ([]domain.Order, error) {
	if actor.ID == "" {
		return nil, domain.ErrNotAuthorized
	}
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	return e.list(ctx, func(ctx context.Context) ([]domain.Order, error) {
		return e.orders.FindByBuyer(ctx, actor.ID, filter)
	})
}

// ListSellerOrders возвращает заказы, содержащие позиции вызывающего продавца.
func (e *Engine) ListSellerOrders(ctx context.Context, actor domain.Actor, filter domain.OrderListFilter) ([]domain.Order, error) {
	if actor.ID == "" || (actor.Role != domain.RoleSeller && !actor.IsAdmin()) {
		return nil, domain.ErrNotAuthorized
	}
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	return e.list(ctx, func(ctx context.Context) ([]domain.Order, error) {
		return e.orders.FindBySeller(ctx, actor.ID, filter)
	})
}

// ListAllOrders возвращает все заказы. Только для админа.
func (e *Engine) ListAllOrders(ctx context.Context, actor domain.Actor, filter domain.OrderListFilter) ([]domain.Order, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrNotAuthorized
	}
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	return e.list(ctx, func(ctx context.Context) ([]domain.Order, error) {
		return e.orders.FindAll(ctx, filter)
	})
}

// Timeline возвращает историю заказа тем, кто может его видеть.
func (e *Engine) Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := e.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	if e.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	var events []domain.TimelineEvent
	err := e.callStore(ctx, func(ctx context.Context) error {
		var err error
		events, err = e.timeline.List(ctx, orderID)
		return err
	})
	return events, err
}

// SellerSummary считает выручку, комиссию и выплату продавца по всем его заказам.
func (e *Engine) SellerSummary(ctx context.Context, actor domain.Actor) (SellerSummary, error) {
	if actor.ID == "" || (actor.Role != domain.RoleSeller && !actor.IsAdmin()) {
		return SellerSummary{}, domain.ErrNotAuthorized
	}

	summary := SellerSummary{
		SellerID:   actor.ID,
		Gross:      decimal.Zero,
		Commission: decimal.Zero,
		Payout:     decimal.Zero,
	}
	// Листинг идёт от новых к старым: заказ, созданный между страницами, сдвигает уже
	// прочитанные на следующую страницу. Заказы не удаляются, поэтому пропусков нет,
	// а повторы отсекаются по ID.
	seen := make(map[string]struct{})
	for offset := 0; ; offset += summaryPageSize {
		page, err := e.list(ctx, func(ctx context.Context) ([]domain.Order, error) {
			return e.orders.FindBySeller(ctx, actor.ID, domain.OrderListFilter{Limit: summaryPageSize, Offset: offset})
		})
		if err != nil {
			return SellerSummary{}, err
		}
		for i := range page {
			if _, dup := seen[page[i].ID]; dup {
				continue
			}
			seen[page[i].ID] = struct{}{}
			summary.add(&page[i])
		}
		if len(page) < summaryPageSize {
			return summary, nil
		}
	}
}

func (s *SellerSummary) add(order *domain.Order) {
	switch order.Status {
	case domain.OrderStatusCancelled:
		s.CancelledOrders++
		return
	case domain.OrderStatusDelivered:
		s.DeliveredOrders++
	default:
		s.OpenOrders++
		return
	}
	for _, c := range order.Commissions {
		if c.SellerID != s.SellerID {
			continue
		}
		s.Gross = s.Gross.Add(c.Gross)
		s.Commission = s.Commission.Add(c.Amount)
		s.Payout = s.Payout.Add(c.Payout)
	}
}

func (e *Engine) list(ctx context.Context, fn func(ctx context.Context) ([]domain.Order, error)) ([]domain.Order, error) {
	var orders []domain.Order
	err := e.callStore(ctx, func(ctx context.Context) error {
		var err error
		orders, err = fn(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

func normalizeFilter(filter domain.OrderListFilter) (domain.OrderListFilter, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, fmt.Errorf("%w: unknown status filter %q", domain.ErrInvalidInput, filter.Status)
	}
	if filter.Offset < 0 {
		return filter, fmt.Errorf("%w: offset must be non-negative", domain.ErrInvalidInput)
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	return filter, nil
}
