package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// OrderRepository — простая in-memory реализация domain.OrderRepository.
type OrderRepository struct {
	mu      sync.RWMutex
	items   map[string]domain.Order
	numbers map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		items:   make(map[string]domain.Order),
		numbers: make(map[string]string),
	}
}

// Create сохраняет новый заказ, если ID и номер ещё не заняты.
func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(order)
}

func (r *OrderRepository) createLocked(order domain.Order) error {
	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, taken := r.numbers[order.OrderNumber]; taken {
		return domain.ErrOrderNumberTaken
	}
	// Храним копию, чтобы вызывающий не мог изменить сохранённый заказ.
	r.items[order.ID] = order.Clone()
	r.numbers[order.OrderNumber] = order.ID
	return nil
}

// FindByID возвращает заказ или ErrOrderNotFound, если его нет.
func (r *OrderRepository) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// FindByBuyer возвращает заказы покупателя, новые первыми.
func (r *OrderRepository) FindByBuyer(_ context.Context, buyerID string, filter domain.OrderListFilter) ([]domain.Order, error) {
	return r.find(filter, func(o *domain.Order) bool { return o.BuyerID == buyerID }), nil
}

// FindBySeller возвращает заказы с позициями продавца, новые первыми.
func (r *OrderRepository) FindBySeller(_ context.Context, sellerID string, filter domain.OrderListFilter) ([]domain.Order, error) {
	return r.find(filter, func(o *domain.Order) bool { return o.HasSeller(sellerID) }), nil
}

// FindAll возвращает все заказы, новые первыми.
func (r *OrderRepository) FindAll(_ context.Context, filter domain.OrderListFilter) ([]domain.Order, error) {
	return r.find(filter, func(*domain.Order) bool { return true }), nil
}

// ExistsByNumber проверяет, занят ли номер заказа.
func (r *OrderRepository) ExistsByNumber(_ context.Context, orderNumber string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.numbers[orderNumber]
	return ok, nil
}

// Update перезаписывает заказ, проверяя версию (optimistic locking).
func (r *OrderRepository) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(order)
}

func (r *OrderRepository) updateLocked(order domain.Order) error {
	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	stored := order.Clone()
	stored.Version++
	r.items[order.ID] = stored
	return nil
}

func (r *OrderRepository) find(filter domain.OrderListFilter, match func(o *domain.Order) bool) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if !match(&order) {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Order{}
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
