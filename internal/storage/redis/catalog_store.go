// Package redis хранит остатки каталога в Redis и списывает их Lua-скриптом.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

const defaultKeyPrefix = "agro:"

// reserveScript атомарно списывает ARGV[1] единиц, если их хватает.
// Ответ: {1, остаток} — списано; {0, остаток} — не хватает; {-1, 0} — товара нет.
var reserveScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return {-1, 0}
end

current = tonumber(current)
local quantity = tonumber(ARGV[1])
if current >= quantity then
	return {1, redis.call('DECRBY', KEYS[1], quantity)}
end

return {0, current}
`)

// releaseScript возвращает остаток только существующему товару.
var releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

// CatalogStore — каталог, где карточка товара лежит в hash, а остаток в отдельном счётчике.
type CatalogStore struct {
	client redis.UniversalClient
	prefix string
}

// NewCatalogStore создаёт каталог. Пустой prefix заменяется на "agro:".
func NewCatalogStore(client redis.UniversalClient, prefix string) *CatalogStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &CatalogStore{client: client, prefix: prefix}
}

func (s *CatalogStore) productKey(id string) string { return s.prefix + "product:" + id }
func (s *CatalogStore) stockKey(id string) string   { return s.prefix + "stock:" + id }

// Upsert записывает карточку и остаток одной транзакцией MULTI/EXEC.
func (s *CatalogStore) Upsert(ctx context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.productKey(product.ID), map[string]any{
			"name":        product.Name,
			"seller_id":   product.SellerID,
			"seller_name": product.SellerName,
			"price":       product.Price.String(),
			"unit":        product.Unit,
			"image_url":   product.ImageURL,
		})
		pipe.Set(ctx, s.stockKey(product.ID), product.Stock, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", product.ID, err)
	}
	return nil
}

func (s *CatalogStore) GetByID(ctx context.Context, productID string) (domain.Product, error) {
	var (
		card  *redis.MapStringStringCmd
		stock *redis.StringCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.HGetAll(ctx, s.productKey(productID))
		stock = pipe.Get(ctx, s.stockKey(productID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}

	fields := card.Val()
	if len(fields) == 0 || errors.Is(stock.Err(), redis.Nil) {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}

	available, err := strconv.Atoi(stock.Val())
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse stock of %s: %w", productID, err)
	}
	price, err := decimal.NewFromString(fields["price"])
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse price of %s: %w", productID, err)
	}

	return domain.Product{
		ID:         productID,
		Name:       fields["name"],
		SellerID:   fields["seller_id"],
		SellerName: fields["seller_name"],
		Price:      price,
		Stock:      available,
		Unit:       fields["unit"],
		ImageURL:   fields["image_url"],
	}, nil
}

func (s *CatalogStore) Reserve(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: reserve quantity %d", domain.ErrInvalidLineItem, qty)
	}

	result, err := reserveScript.Run(ctx, s.client, []string{s.stockKey(productID)}, qty).Int64Slice()
	if err != nil {
		return fmt.Errorf("reserve stock of %s: %w", productID, err)
	}
	if len(result) != 2 {
		return fmt.Errorf("reserve stock of %s: unexpected script reply %v", productID, result)
	}

	switch result[0] {
	case 1:
		return nil
	case -1:
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	default:
		return fmt.Errorf("%w: product %s requested %d, available %d",
			domain.ErrInsufficientStock, productID, qty, result[1])
	}
}

func (s *CatalogStore) Release(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: release quantity %d", domain.ErrInvalidLineItem, qty)
	}

	result, err := releaseScript.Run(ctx, s.client, []string{s.stockKey(productID)}, qty).Int64()
	if err != nil {
		return fmt.Errorf("release stock of %s: %w", productID, err)
	}
	if result < 0 {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return nil
}

// Ping проверяет соединение с Redis (health-check).
func (s *CatalogStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var (
	_ domain.CatalogStore  = (*CatalogStore)(nil)
	_ domain.CatalogSeeder = (*CatalogStore)(nil)
)
