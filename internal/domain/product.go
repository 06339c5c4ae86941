package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Product — запись каталога, которую видит ядро заказов.
// Stock меняется только через CatalogStore.Reserve/Release.
type Product struct {
	ID         string
	Name       string
	SellerID   string
	SellerName string
	Price      decimal.Decimal
	Stock      int
	Unit       string
	ImageURL   string
}

// Validate проверяет запись перед загрузкой в каталог.
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	case p.SellerID == "":
		return fmt.Errorf("%w: product %s seller is required", ErrInvalidInput, p.ID)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: product %s price must be non-negative", ErrInvalidInput, p.ID)
	case p.Stock < 0:
		return fmt.Errorf("%w: product %s stock must be non-negative", ErrInvalidInput, p.ID)
	}
	return nil
}

// Snapshot замораживает текущие данные товара в позицию заказа.
func (p Product) Snapshot(quantity int) LineItem {
	return LineItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		SellerID:    p.SellerID,
		SellerName:  p.SellerName,
		UnitPrice:   p.Price,
		Quantity:    quantity,
		Unit:        p.Unit,
		ImageURL:    p.ImageURL,
	}
}
