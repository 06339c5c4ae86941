package postgres

import (
	"context"
	"database/sql"
	"sort"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// TransactionalStore выполняет оформление и отмену заказа в одной транзакции с остатками.
type TransactionalStore struct {
	db *sql.DB
}

// NewTransactionalStore создаёт транзакционное хранилище поверх общего подключения.
func NewTransactionalStore(store *Store) *TransactionalStore {
	return &TransactionalStore{db: store.DB()}
}

// PlaceOrder резервирует все позиции и сохраняет заказ. Любая ошибка откатывает всё.
func (s *TransactionalStore) PlaceOrder(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, item := range lockOrder(order.Items) {
			if err := reserveStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return insertOrder(ctx, tx, order)
	})
}

// CancelOrder сохраняет отмену с проверкой версии и возвращает остатки.
// При конфликте версий остатки не трогаются.
func (s *TransactionalStore) CancelOrder(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := updateOrder(ctx, tx, order); err != nil {
			return err
		}
		for _, item := range lockOrder(order.Items) {
			if err := releaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// lockOrder упорядочивает позиции по товару: строки products блокируются
// в одном порядке во всех транзакциях, и встречные заказы не взаимоблокируются.
func lockOrder(items []domain.LineItem) []domain.LineItem {
	sorted := append([]domain.LineItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	return sorted
}

var _ domain.TransactionalOrderStore = (*TransactionalStore)(nil)
