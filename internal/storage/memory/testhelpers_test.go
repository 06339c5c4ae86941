package memory_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

func newProduct(id, seller string, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "product " + id,
		SellerID: seller,
		Price:    decimal.RequireFromString("2.50"),
		Stock:    stock,
		Unit:     "kg",
	}
}

func newOrder(id, number, buyer string, items ...domain.LineItem) domain.Order {
	now := time.Now().UTC()
	if len(items) == 0 {
		items = []domain.LineItem{newProduct("p-1", "seller-a", 0).Snapshot(2)}
	}
	pricing, err := domain.ComputePricing(domain.PricedLines(items), decimal.Zero, decimal.Zero, decimal.Zero)
	if err != nil {
		panic(err)
	}
	return domain.Order{
		ID:          id,
		OrderNumber: number,
		BuyerID:     buyer,
		Items:       items,
		Pricing:     pricing,
		Commissions: domain.DeriveCommissions(items, decimal.Zero),
		Payment:     domain.Payment{Method: domain.PaymentMethodCard, Status: domain.PaymentStatusPending},
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
