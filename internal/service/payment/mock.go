// Package payment содержит платёжного провайдера-заглушку: реальной интеграции у сервиса нет.
package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway.
// По умолчанию списание и возврат успешны. Безопасна для конкурентного использования.
type MockGateway struct {
	mu sync.Mutex

	// ChargeErr возвращается из Charge, если задан.
	ChargeErr error
	// RefundErr возвращается из Refund, если задан.
	RefundErr error
	// DeclineAbove отклоняет заказы дороже порога (нулевой порог отключает проверку).
	DeclineAbove decimal.Decimal

	chargeCalls int
	refundCalls int
	charged     map[string]string
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{charged: make(map[string]string)}
}

// Charge «списывает» TotalAmount заказа и возвращает идентификатор транзакции.
func (m *MockGateway) Charge(ctx context.Context, order domain.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.chargeCalls++
	if m.ChargeErr != nil {
		return "", m.ChargeErr
	}
	if m.DeclineAbove.IsPositive() && order.Pricing.TotalAmount.GreaterThan(m.DeclineAbove) {
		return "", fmt.Errorf("%w: amount %s exceeds limit", domain.ErrPaymentDeclined, order.Pricing.TotalAmount.StringFixed(2))
	}

	txID := "txn_" + uuid.NewString()
	m.charged[order.ID] = txID
	return txID, nil
}

// Refund возвращает оплату заказа.
func (m *MockGateway) Refund(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.refundCalls++
	if m.RefundErr != nil {
		return m.RefundErr
	}
	delete(m.charged, order.ID)
	return nil
}

// Calls возвращает число вызовов Charge и Refund.
func (m *MockGateway) Calls() (charge, refund int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chargeCalls, m.refundCalls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
