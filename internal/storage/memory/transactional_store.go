package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// TransactionalStore объединяет каталог и заказы одного процесса в атомарные операции.
// Блокировки берутся всегда в порядке orders -> catalog.
type TransactionalStore struct {
	catalog *CatalogStore
	orders  *OrderRepository
}

// NewTransactionalStore связывает каталог и репозиторий заказов.
func NewTransactionalStore(catalog *CatalogStore, orders *OrderRepository) *TransactionalStore {
	return &TransactionalStore{catalog: catalog, orders: orders}
}

// PlaceOrder сохраняет заказ и списывает остатки всех позиций либо не меняет ничего.
func (s *TransactionalStore) PlaceOrder(_ context.Context, order domain.Order) error {
	s.orders.mu.Lock()
	defer s.orders.mu.Unlock()
	s.catalog.mu.Lock()
	defer s.catalog.mu.Unlock()

	if _, taken := s.orders.numbers[order.OrderNumber]; taken {
		return domain.ErrOrderNumberTaken
	}

	reserved := make([]domain.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		if err := s.catalog.reserveLocked(item.ProductID, item.Quantity); err != nil {
			for _, done := range reserved {
				_ = s.catalog.releaseLocked(done.ProductID, done.Quantity)
			}
			return err
		}
		reserved = append(reserved, item)
	}

	if err := s.orders.createLocked(order); err != nil {
		for _, done := range reserved {
			_ = s.catalog.releaseLocked(done.ProductID, done.Quantity)
		}
		return err
	}
	return nil
}

// CancelOrder сохраняет отменённый заказ с проверкой версии и возвращает остатки.
func (s *TransactionalStore) CancelOrder(_ context.Context, order domain.Order) error {
	s.orders.mu.Lock()
	defer s.orders.mu.Unlock()
	s.catalog.mu.Lock()
	defer s.catalog.mu.Unlock()

	for _, item := range order.Items {
		if _, ok := s.catalog.products[item.ProductID]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
	}
	if err := s.orders.updateLocked(order); err != nil {
		return err
	}
	for _, item := range order.Items {
		// Товар и количество проверены выше, ошибка здесь невозможна.
		_ = s.catalog.releaseLocked(item.ProductID, item.Quantity)
	}
	return nil
}

var _ domain.TransactionalOrderStore = (*TransactionalStore)(nil)
