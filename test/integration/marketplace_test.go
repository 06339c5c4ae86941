package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/metrics"
	"github.com/vladislavdragonenkov/agromarket/internal/service/idempotency"
	"github.com/vladislavdragonenkov/agromarket/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/agromarket/internal/service/notify"
	"github.com/vladislavdragonenkov/agromarket/internal/service/outbox"
	"github.com/vladislavdragonenkov/agromarket/internal/service/payment"
	"github.com/vladislavdragonenkov/agromarket/internal/storage/memory"
	"github.com/vladislavdragonenkov/agromarket/internal/transport/httpapi"
)

// capturePublisher запоминает уведомления, которые outbox worker отправил наружу.
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *capturePublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types(orderID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.AggregateID == orderID {
			out = append(out, e.EventType)
		}
	}
	return out
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type orderView struct {
	ID      string `json:"id"`
	BuyerID string `json:"buyer_id"`
	Status  string `json:"status"`
	Pricing struct {
		Subtotal           json.Number `json:"subtotal"`
		Tax                json.Number `json:"tax"`
		ShippingCost       json.Number `json:"shipping_cost"`
		PlatformCommission json.Number `json:"platform_commission"`
		TotalAmount        json.Number `json:"total_amount"`
	} `json:"pricing"`
	Commissions []struct {
		SellerID string      `json:"seller_id"`
		Gross    json.Number `json:"gross"`
		Amount   json.Number `json:"amount"`
		Payout   json.Number `json:"payout"`
	} `json:"commissions"`
	Payment struct {
		Status string `json:"status"`
	} `json:"payment"`
}

// MarketplaceTestSuite проверяет сквозные сценарии через HTTP поверх хранилищ в памяти.
type MarketplaceTestSuite struct {
	suite.Suite
	server    *httptest.Server
	catalog   *memory.CatalogStore
	outboxRep *memory.OutboxRepository
	worker    *outbox.Worker
	published *capturePublisher
}

func (s *MarketplaceTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	baseLogger := log.New()
	baseLogger.SetOutput(io.Discard)
	logger := baseLogger.WithField("component", "integration-test")

	ctx := context.Background()
	s.catalog = memory.NewCatalogStore()
	s.Require().NoError(s.catalog.Upsert(ctx, domain.Product{
		ID: "carrots", Name: "Carrots", SellerID: "seller-a", SellerName: "Valley Farm",
		Price: decimal.RequireFromString("2.00"), Stock: 10, Unit: "kg",
	}))
	s.Require().NoError(s.catalog.Upsert(ctx, domain.Product{
		ID: "eggs", Name: "Free-range eggs", SellerID: "seller-b", SellerName: "Hill Coop",
		Price: decimal.RequireFromString("0.50"), Stock: 100, Unit: "piece",
	}))

	orders := memory.NewOrderRepository()
	s.outboxRep = memory.NewOutboxRepository()
	registry := prometheus.NewRegistry()

	cfg := lifecycle.DefaultConfig()
	cfg.Pricing = domain.PricingConfig{
		TaxRate:         decimal.RequireFromString("0.10"),
		CommissionRate:  decimal.RequireFromString("0.05"),
		DefaultShipping: decimal.RequireFromString("5"),
	}
	engine, err := lifecycle.NewEngine(s.catalog, orders, cfg,
		lifecycle.WithTransactionalStore(memory.NewTransactionalStore(s.catalog, orders)),
		lifecycle.WithNotificationSink(notify.NewOutboxSink(s.outboxRep)),
		lifecycle.WithTimeline(memory.NewTimelineRepository()),
		lifecycle.WithPaymentGateway(payment.NewMockGateway()),
		lifecycle.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registry)),
		lifecycle.WithLogger(logger),
	)
	s.Require().NoError(err)

	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour, logger)
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Orders:      httpapi.NewHandler(engine, guard, logger),
		HTTPMetrics: metrics.NewHTTPMetricsWithRegisterer(registry),
		Logger:      logger,
	})
	s.server = httptest.NewServer(router)

	s.published = &capturePublisher{}
	s.worker = outbox.NewWorker(s.outboxRep, s.published,
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(registry)),
	)
}

func (s *MarketplaceTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *MarketplaceTestSuite) do(method, path, userID, role string, body any, headers ...string) (int, apiEnvelope, http.Header) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(httpapi.HeaderUserID, userID)
		req.Header.Set(httpapi.HeaderUserRole, role)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var env apiEnvelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env, resp.Header
}

func (s *MarketplaceTestSuite) decodeOrder(env apiEnvelope) orderView {
	var order orderView
	s.Require().NoError(json.Unmarshal(env.Data, &order))
	return order
}

func checkoutBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"items": items,
		"shipping_address": map[string]string{
			"name": "Maria Buyer", "phone": "+15550100", "line1": "12 Orchard Lane",
			"city": "Salinas", "state": "CA", "country": "US", "zip": "93901",
		},
		"payment_method": "card",
	}
}

func item(productID string, qty int) map[string]any {
	return map[string]any{"product_id": productID, "quantity": qty}
}

func (s *MarketplaceTestSuite) stock(productID string) int {
	product, err := s.catalog.GetByID(context.Background(), productID)
	s.Require().NoError(err)
	return product.Stock
}

func (s *MarketplaceTestSuite) placeOrder(buyerID string, items ...map[string]any) orderView {
	code, env, _ := s.do(http.MethodPost, "/orders", buyerID, "buyer", checkoutBody(items...))
	s.Require().Equal(http.StatusCreated, code, env.Message)
	return s.decodeOrder(env)
}

func (s *MarketplaceTestSuite) setStatus(orderID, actorID, role, status string) {
	code, env, _ := s.do(http.MethodPut, "/orders/"+orderID+"/status", actorID, role, map[string]string{"status": status})
	s.Require().Equal(http.StatusOK, code, env.Message)
}

func (s *MarketplaceTestSuite) TestFullLifecycle() {
	order := s.placeOrder("buyer-1", item("carrots", 3), item("eggs", 12))

	s.Equal("pending", order.Status)
	s.Equal("12.00", order.Pricing.Subtotal.String())
	s.Equal("1.20", order.Pricing.Tax.String())
	s.Equal("5.00", order.Pricing.ShippingCost.String())
	s.Equal("0.60", order.Pricing.PlatformCommission.String())
	s.Equal("18.20", order.Pricing.TotalAmount.String())
	s.Require().Len(order.Commissions, 2)
	s.Equal("seller-a", order.Commissions[0].SellerID)
	s.Equal("5.70", order.Commissions[0].Payout.String())
	s.Equal(7, s.stock("carrots"))
	s.Equal(88, s.stock("eggs"))

	code, env, _ := s.do(http.MethodPut, "/orders/"+order.ID+"/pay", "buyer-1", "buyer", nil)
	s.Require().Equal(http.StatusOK, code, env.Message)
	s.Equal("completed", s.decodeOrder(env).Payment.Status)

	s.setStatus(order.ID, "seller-a", "seller", "confirmed")
	s.setStatus(order.ID, "seller-b", "seller", "processing")
	s.setStatus(order.ID, "seller-a", "seller", "shipped")
	s.setStatus(order.ID, "buyer-1", "buyer", "delivered")

	code, env, _ = s.do(http.MethodGet, "/orders/"+order.ID, "seller-b", "seller", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("delivered", s.decodeOrder(env).Status)

	code, env, _ = s.do(http.MethodGet, "/orders/seller/me/summary", "seller-a", "seller", nil)
	s.Require().Equal(http.StatusOK, code)
	var summary struct {
		DeliveredOrders int         `json:"delivered_orders"`
		Gross           json.Number `json:"gross"`
		Commission      json.Number `json:"commission"`
		Payout          json.Number `json:"payout"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &summary))
	s.Equal(1, summary.DeliveredOrders)
	s.Equal("6.00", summary.Gross.String())
	s.Equal("0.30", summary.Commission.String())
	s.Equal("5.70", summary.Payout.String())

	code, env, _ = s.do(http.MethodGet, "/orders/"+order.ID+"/timeline", "buyer-1", "buyer", nil)
	s.Require().Equal(http.StatusOK, code)
	var timeline []struct {
		Type   string `json:"type"`
		Status string `json:"status"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &timeline))
	s.Require().Len(timeline, 6)
	s.Equal(domain.TimelineOrderCreated, timeline[0].Type)
	s.Equal(domain.TimelinePaymentCompleted, timeline[1].Type)
	s.Equal("delivered", timeline[5].Status)

	s.worker.ProcessOnce(context.Background())
	s.ElementsMatch([]string{
		domain.NotificationOrderCreated,
		domain.NotificationOrderPaid,
		domain.NotificationOrderStatusChanged,
		domain.NotificationOrderStatusChanged,
		domain.NotificationOrderStatusChanged,
		domain.NotificationOrderStatusChanged,
	}, s.published.types(order.ID))
	s.Empty(s.outboxRep.AllPending())
}

func (s *MarketplaceTestSuite) TestCancelReleasesStockAndRefunds() {
	order := s.placeOrder("buyer-1", item("carrots", 4))
	s.Equal(6, s.stock("carrots"))

	code, _, _ := s.do(http.MethodPut, "/orders/"+order.ID+"/pay", "buyer-1", "buyer", nil)
	s.Require().Equal(http.StatusOK, code)
	s.setStatus(order.ID, "seller-a", "seller", "confirmed")

	code, env, _ := s.do(http.MethodPut, "/orders/"+order.ID+"/cancel", "buyer-1", "buyer", map[string]string{"reason": "changed my mind"})
	s.Require().Equal(http.StatusOK, code, env.Message)
	cancelled := s.decodeOrder(env)
	s.Equal("cancelled", cancelled.Status)
	s.Equal("refunded", cancelled.Payment.Status)
	s.Equal(10, s.stock("carrots"))

	code, env, _ = s.do(http.MethodPut, "/orders/"+order.ID+"/cancel", "buyer-1", "buyer", nil)
	s.Equal(http.StatusBadRequest, code)
	s.Equal(string(domain.KindInvalidTransition), env.Error)
	s.Equal(10, s.stock("carrots"), "second cancel must not release stock again")
}

func (s *MarketplaceTestSuite) TestCannotCancelAfterShipment() {
	order := s.placeOrder("buyer-1", item("carrots", 1))
	s.setStatus(order.ID, "seller-a", "seller", "confirmed")
	s.setStatus(order.ID, "seller-a", "seller", "processing")
	s.setStatus(order.ID, "seller-a", "seller", "shipped")

	code, env, _ := s.do(http.MethodPut, "/orders/"+order.ID+"/cancel", "buyer-1", "buyer", nil)
	s.Equal(http.StatusBadRequest, code)
	s.Equal(string(domain.KindInvalidTransition), env.Error)
	s.Equal(9, s.stock("carrots"))
}

func (s *MarketplaceTestSuite) TestInsufficientStockLeavesCatalogUntouched() {
	code, env, _ := s.do(http.MethodPost, "/orders", "buyer-1", "buyer", checkoutBody(item("eggs", 5), item("carrots", 11)))
	s.Equal(http.StatusBadRequest, code)
	s.Equal(string(domain.KindInsufficientStock), env.Error)
	s.Equal(100, s.stock("eggs"))
	s.Equal(10, s.stock("carrots"))
}

func (s *MarketplaceTestSuite) TestIdempotentCheckout() {
	body := checkoutBody(item("carrots", 2))

	code, first, _ := s.do(http.MethodPost, "/orders", "buyer-1", "buyer", body, "Idempotency-Key", "checkout-42")
	s.Require().Equal(http.StatusCreated, code)

	code, second, headers := s.do(http.MethodPost, "/orders", "buyer-1", "buyer", body, "Idempotency-Key", "checkout-42")
	s.Require().Equal(http.StatusCreated, code)
	s.Equal("true", headers.Get("Idempotent-Replayed"))
	s.Equal(s.decodeOrder(first).ID, s.decodeOrder(second).ID)
	s.Equal(8, s.stock("carrots"), "replay must not reserve stock twice")

	code, env, _ := s.do(http.MethodPost, "/orders", "buyer-1", "buyer", checkoutBody(item("carrots", 3)), "Idempotency-Key", "checkout-42")
	s.Equal(http.StatusConflict, code)
	s.Equal(string(domain.KindConflict), env.Error)
}

func (s *MarketplaceTestSuite) TestAuthorization() {
	order := s.placeOrder("buyer-1", item("carrots", 1))

	code, _, _ := s.do(http.MethodGet, "/orders/"+order.ID, "", "", nil)
	s.Equal(http.StatusUnauthorized, code)

	code, env, _ := s.do(http.MethodGet, "/orders/"+order.ID, "buyer-2", "buyer", nil)
	s.Equal(http.StatusForbidden, code)
	s.Equal(string(domain.KindNotAuthorized), env.Error)

	code, _, _ = s.do(http.MethodPut, "/orders/"+order.ID+"/status", "seller-b", "seller", map[string]string{"status": "confirmed"})
	s.Equal(http.StatusForbidden, code, "seller without items in the order")

	code, _, _ = s.do(http.MethodGet, "/orders/admin/all", "buyer-1", "buyer", nil)
	s.Equal(http.StatusForbidden, code)

	code, env, _ = s.do(http.MethodGet, "/orders/admin/all", "admin-1", "admin", nil)
	s.Require().Equal(http.StatusOK, code)
	var all []orderView
	s.Require().NoError(json.Unmarshal(env.Data, &all))
	s.Len(all, 1)
}

func (s *MarketplaceTestSuite) TestConcurrentCheckoutNeverOversells() {
	const buyers = 40

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		soldOut int
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, _ := json.Marshal(checkoutBody(item("carrots", 1)))
			req, _ := http.NewRequest(http.MethodPost, s.server.URL+"/orders", bytes.NewReader(raw))
			req.Header.Set(httpapi.HeaderUserID, fmt.Sprintf("buyer-%d", i))
			resp, err := s.server.Client().Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()

			mu.Lock()
			defer mu.Unlock()
			switch resp.StatusCode {
			case http.StatusCreated:
				created++
			case http.StatusBadRequest:
				soldOut++
			}
		}()
	}
	wg.Wait()

	s.Equal(10, created)
	s.Equal(buyers-10, soldOut)
	s.Zero(s.stock("carrots"))
}

func TestMarketplace(t *testing.T) {
	suite.Run(t, new(MarketplaceTestSuite))
}
