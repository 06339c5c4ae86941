package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// CatalogStore — in-memory каталог. Проверка и списание остатка выполняются
// под одной блокировкой, что эквивалентно условному UPDATE ... WHERE stock >= qty.
type CatalogStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewCatalogStore создаёт пустой каталог.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{products: make(map[string]domain.Product)}
}

// Upsert добавляет или полностью заменяет товар.
func (s *CatalogStore) Upsert(_ context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	return nil
}

// GetByID возвращает снимок товара.
func (s *CatalogStore) GetByID(_ context.Context, productID string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return product, nil
}

// Reserve списывает qty, только если хватает остатка.
func (s *CatalogStore) Reserve(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(productID, qty)
}

// Release возвращает qty на склад.
func (s *CatalogStore) Release(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(productID, qty)
}

// List возвращает товары, отсортированные по ID.
func (s *CatalogStore) List() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *CatalogStore) reserveLocked(productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: reserve quantity %d", domain.ErrInvalidLineItem, qty)
	}
	product, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if product.Stock < qty {
		return fmt.Errorf("%w: product %s requested %d, available %d", domain.ErrInsufficientStock, productID, qty, product.Stock)
	}
	product.Stock -= qty
	s.products[productID] = product
	return nil
}

func (s *CatalogStore) releaseLocked(productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: release quantity %d", domain.ErrInvalidLineItem, qty)
	}
	product, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	product.Stock += qty
	s.products[productID] = product
	return nil
}

var (
	_ domain.CatalogStore  = (*CatalogStore)(nil)
	_ domain.CatalogSeeder = (*CatalogStore)(nil)
)
