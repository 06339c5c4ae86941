package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// seedProduct — запись файла начального наполнения каталога.
type seedProduct struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SellerID   string          `json:"seller_id"`
	SellerName string          `json:"seller_name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Unit       string          `json:"unit"`
	ImageURL   string          `json:"image_url"`
}

// loadCatalogSeed читает JSON-массив товаров и проверяет каждую запись.
func loadCatalogSeed(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}

	var records []seedProduct
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode catalog seed %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(records))
	products := make([]domain.Product, 0, len(records))
	for i, r := range records {
		product := domain.Product(r)
		if err := product.Validate(); err != nil {
			return nil, fmt.Errorf("catalog seed record %d: %w", i, err)
		}
		if _, dup := seen[product.ID]; dup {
			return nil, fmt.Errorf("catalog seed record %d: duplicate product %s", i, product.ID)
		}
		seen[product.ID] = struct{}{}
		products = append(products, product)
	}
	return products, nil
}

// seedCatalog загружает товары из файла до приёма трафика.
func seedCatalog(ctx context.Context, seeder domain.CatalogSeeder, path string, logger *log.Entry) error {
	if path == "" {
		return nil
	}
	products, err := loadCatalogSeed(path)
	if err != nil {
		return err
	}
	for _, product := range products {
		if err := seeder.Upsert(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}
	logger.WithFields(log.Fields{"file": path, "products": len(products)}).Info("catalog seeded")
	return nil
}
