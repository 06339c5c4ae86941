package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricedLine — минимальные данные позиции для расчёта цены.
type PricedLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// PricingConfig — ставки маркетплейса и доставка по умолчанию.
type PricingConfig struct {
	TaxRate         decimal.Decimal
	CommissionRate  decimal.Decimal
	DefaultShipping decimal.Decimal
}

// Validate проверяет, что ставки лежат в [0, 1], а доставка неотрицательна.
func (c PricingConfig) Validate() error {
	if err := validateRate("tax rate", c.TaxRate); err != nil {
		return err
	}
	if err := validateRate("commission rate", c.CommissionRate); err != nil {
		return err
	}
	if c.DefaultShipping.IsNegative() {
		return fmt.Errorf("%w: default shipping must be non-negative", ErrInvalidInput)
	}
	return nil
}

var one = decimal.NewFromInt(1)

func validateRate(name string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return fmt.Errorf("%w: %s %s is outside [0, 1]", ErrInvalidInput, name, rate)
	}
	return nil
}

// ComputePricing считает суммы заказа. Чистая функция, округления не выполняет:
// результат точен, округление делается только при отображении.
func ComputePricing(lines []PricedLine, shipping, taxRate, commissionRate decimal.Decimal) (Pricing, error) {
	if len(lines) == 0 {
		return Pricing{}, ErrEmptyOrder
	}
	if shipping.IsNegative() {
		return Pricing{}, fmt.Errorf("%w: shipping cost must be non-negative", ErrInvalidInput)
	}
	if err := validateRate("tax rate", taxRate); err != nil {
		return Pricing{}, err
	}
	if err := validateRate("commission rate", commissionRate); err != nil {
		return Pricing{}, err
	}

	subtotal := decimal.Zero
	for i, line := range lines {
		if line.UnitPrice.IsNegative() {
			return Pricing{}, fmt.Errorf("%w: line %d has negative unit price", ErrInvalidLineItem, i)
		}
		if line.Quantity < 1 {
			return Pricing{}, fmt.Errorf("%w: line %d has quantity %d", ErrInvalidLineItem, i, line.Quantity)
		}
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	tax := subtotal.Mul(taxRate)
	return Pricing{
		Subtotal:           subtotal,
		Tax:                tax,
		ShippingCost:       shipping,
		PlatformCommission: subtotal.Mul(commissionRate),
		TotalAmount:        subtotal.Add(tax).Add(shipping),
	}, nil
}

// DeriveCommissions группирует позиции по продавцу (в порядке первого появления)
// и считает комиссию с доли каждого. Сумма Amount равна subtotal * rate.
func DeriveCommissions(items []LineItem, rate decimal.Decimal) []Commission {
	index := make(map[string]int, len(items))
	result := make([]Commission, 0, len(items))
	for _, item := range items {
		i, ok := index[item.SellerID]
		if !ok {
			i = len(result)
			index[item.SellerID] = i
			result = append(result, Commission{SellerID: item.SellerID, Rate: rate, Gross: decimal.Zero})
		}
		result[i].Gross = result[i].Gross.Add(item.LineTotal())
	}

	for i := range result {
		result[i].Amount = result[i].Gross.Mul(rate)
		result[i].Payout = result[i].Gross.Sub(result[i].Amount)
	}
	return result
}

// PricedLines превращает позиции заказа во вход калькулятора.
func PricedLines(items []LineItem) []PricedLine {
	lines := make([]PricedLine, len(items))
	for i, item := range items {
		lines[i] = PricedLine{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}
	return lines
}
