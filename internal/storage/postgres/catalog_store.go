package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// CatalogStore — каталог товаров в PostgreSQL. Остаток уменьшается одним условным UPDATE,
// поэтому параллельные резервы не уводят stock в минус.
type CatalogStore struct {
	db *sql.DB
}

// NewCatalogStore создаёт каталог поверх общего подключения.
func NewCatalogStore(store *Store) *CatalogStore {
	return &CatalogStore{db: store.DB()}
}

// Upsert добавляет товар или обновляет его карточку и остаток.
func (s *CatalogStore) Upsert(ctx context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, seller_id, seller_name, price, stock, unit, image_url, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    seller_id = EXCLUDED.seller_id,
		    seller_name = EXCLUDED.seller_name,
		    price = EXCLUDED.price,
		    stock = EXCLUDED.stock,
		    unit = EXCLUDED.unit,
		    image_url = EXCLUDED.image_url,
		    updated_at = NOW()
	`,
		product.ID, product.Name, product.SellerID, product.SellerName,
		product.Price, product.Stock, product.Unit, product.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (s *CatalogStore) GetByID(ctx context.Context, productID string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, seller_id, seller_name, price, stock, unit, image_url
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &p.SellerID, &p.SellerName, &p.Price, &p.Stock, &p.Unit, &p.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (s *CatalogStore) Reserve(ctx context.Context, productID string, qty int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return reserveStock(ctx, s.db, productID, qty)
}

func (s *CatalogStore) Release(ctx context.Context, productID string, qty int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return releaseStock(ctx, s.db, productID, qty)
}

func reserveStock(ctx context.Context, q dbtx, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: reserve quantity %d", domain.ErrInvalidLineItem, qty)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND stock >= $2
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var available int
	err = q.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if err != nil {
		return fmt.Errorf("read stock: %w", err)
	}
	return fmt.Errorf("%w: product %s requested %d, available %d", domain.ErrInsufficientStock, productID, qty, available)
}

func releaseStock(ctx context.Context, q dbtx, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: release quantity %d", domain.ErrInvalidLineItem, qty)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return nil
}

var (
	_ domain.CatalogStore  = (*CatalogStore)(nil)
	_ domain.CatalogSeeder = (*CatalogStore)(nil)
)
