package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// OrderRepository — PostgreSQL-реализация domain.OrderRepository.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт репозиторий заказов.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return insertOrder(ctx, r.db, order)
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) FindByBuyer(ctx context.Context, buyerID string, filter domain.OrderListFilter) ([]domain.Order, error) {
	return r.list(ctx, filter, `buyer_id = $1`, buyerID)
}

// FindBySeller ищет по JSONB-вхождению продавца в позиции (GIN-индекс idx_orders_items).
func (r *OrderRepository) FindBySeller(ctx context.Context, sellerID string, filter domain.OrderListFilter) ([]domain.Order, error) {
	containment, err := json.Marshal([]map[string]string{{"seller_id": sellerID}})
	if err != nil {
		return nil, fmt.Errorf("encode seller filter: %w", err)
	}
	return r.list(ctx, filter, `items @> $1::jsonb`, string(containment))
}

func (r *OrderRepository) FindAll(ctx context.Context, filter domain.OrderListFilter) ([]domain.Order, error) {
	return r.list(ctx, filter, "")
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return updateOrder(ctx, r.db, order)
}

func (r *OrderRepository) ExistsByNumber(ctx context.Context, orderNumber string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, orderNumber,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order number: %w", err)
	}
	return exists, nil
}

func (r *OrderRepository) list(ctx context.Context, filter domain.OrderListFilter, where string, args ...any) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	conds := make([]string, 0, 2)
	if where != "" {
		conds = append(conds, where)
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

func insertOrder(ctx context.Context, q dbtx, order domain.Order) error {
	enc, err := encodeOrder(order)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		order.ID, order.OrderNumber, order.BuyerID, string(order.Status),
		enc.items, enc.commissions, enc.address,
		order.Pricing.Subtotal, order.Pricing.Tax, order.Pricing.ShippingCost,
		order.Pricing.PlatformCommission, order.Pricing.TotalAmount,
		string(order.Payment.Method), string(order.Payment.Status), order.Payment.TransactionID, order.Payment.PaidAt,
		order.CancelReason, order.Version, order.CreatedAt, order.UpdatedAt,
		order.ConfirmedAt, order.ShippedAt, order.DeliveredAt, order.CancelledAt,
	)
	if err != nil {
		if pgErr, ok := uniqueViolation(err); ok {
			if pgErr.ConstraintName == "orders_order_number_key" {
				return domain.ErrOrderNumberTaken
			}
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// updateOrder перезаписывает изменяемые поля заказа при совпадении версии.
// Позиции, комиссии, суммы и адрес после создания не меняются и не перезаписываются.
func updateOrder(ctx context.Context, q dbtx, order domain.Order) error {
	res, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    payment_transaction_id = $3,
		    paid_at = $4,
		    cancel_reason = $5,
		    updated_at = $6,
		    confirmed_at = $7,
		    shipped_at = $8,
		    delivered_at = $9,
		    cancelled_at = $10,
		    version = version + 1
		WHERE id = $11
		  AND version = $12
	`,
		string(order.Status),
		string(order.Payment.Status),
		order.Payment.TransactionID,
		order.Payment.PaidAt,
		order.CancelReason,
		order.UpdatedAt,
		order.ConfirmedAt,
		order.ShippedAt,
		order.DeliveredAt,
		order.CancelledAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
