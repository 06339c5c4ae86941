package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/health"
	"github.com/vladislavdragonenkov/agromarket/internal/metrics"
	"github.com/vladislavdragonenkov/agromarket/internal/service/idempotency"
	"github.com/vladislavdragonenkov/agromarket/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/agromarket/internal/service/payment"
	"github.com/vladislavdragonenkov/agromarket/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	buyer    = domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}
	stranger = domain.Actor{ID: "buyer-2", Role: domain.RoleBuyer}
	sellerA  = domain.Actor{ID: "seller-a", Role: domain.RoleSeller}
	admin    = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "httpapi-test")
}

// failingCatalog — каталог, у которого Reserve падает с инфраструктурной ошибкой.
type failingCatalog struct {
	*memory.CatalogStore
	reserveErr error
}

func (c *failingCatalog) Reserve(ctx context.Context, productID string, qty int) error {
	if c.reserveErr != nil {
		return c.reserveErr
	}
	return c.CatalogStore.Reserve(ctx, productID, qty)
}

type fixture struct {
	router   *gin.Engine
	catalog  *memory.CatalogStore
	payments *payment.MockGateway
}

type fixtureConfig struct {
	reserveErr error
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()
	ctx := context.Background()

	catalog := memory.NewCatalogStore()
	for _, p := range []domain.Product{
		{ID: "tomatoes", Name: "Roma tomatoes", SellerID: "seller-a", SellerName: "Green Acres", Price: decimal.RequireFromString("2.50"), Stock: 10, Unit: "kg"},
		{ID: "maize", Name: "White maize", SellerID: "seller-b", SellerName: "Sunrise Farm", Price: decimal.RequireFromString("1.20"), Stock: 100, Unit: "kg"},
	} {
		require.NoError(t, catalog.Upsert(ctx, p))
	}
	orders := memory.NewOrderRepository()
	payments := payment.NewMockGateway()

	engineCfg := lifecycle.DefaultConfig()
	engineCfg.Pricing = domain.PricingConfig{
		TaxRate:         decimal.RequireFromString("0.10"),
		CommissionRate:  decimal.RequireFromString("0.05"),
		DefaultShipping: decimal.RequireFromString("3"),
	}
	opts := []lifecycle.Option{
		lifecycle.WithTimeline(memory.NewTimelineRepository()),
		lifecycle.WithPaymentGateway(payments),
		lifecycle.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
		lifecycle.WithLogger(quietLogger()),
	}

	var store domain.CatalogStore = catalog
	if cfg.reserveErr != nil {
		store = &failingCatalog{CatalogStore: catalog, reserveErr: cfg.reserveErr}
	} else {
		opts = append(opts, lifecycle.WithTransactionalStore(memory.NewTransactionalStore(catalog, orders)))
	}

	engine, err := lifecycle.NewEngine(store, orders, engineCfg, opts...)
	require.NoError(t, err)

	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), 0, quietLogger())
	healthRegistry := health.NewRegistry("test")
	healthRegistry.Add("catalog", health.Critical("catalog", func(context.Context) error { return nil }))

	router := NewRouter(RouterConfig{
		Orders:      NewHandler(engine, guard, quietLogger()),
		Health:      healthRegistry,
		HTTPMetrics: metrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry()),
		Logger:      quietLogger(),
	})
	return &fixture{router: router, catalog: catalog, payments: payments}
}

func (f *fixture) do(t *testing.T, method, path string, actor *domain.Actor, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req.Header.Set(HeaderUserID, actor.ID)
		req.Header.Set(HeaderUserRole, string(actor.Role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := f.catalog.GetByID(context.Background(), productID)
	require.NoError(t, err)
	return product.Stock
}

func (f *fixture) createOrder(t *testing.T, actor domain.Actor, body map[string]any) orderJSON {
	t.Helper()
	w := f.do(t, http.MethodPost, "/orders", &actor, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order orderJSON
	decode(t, w, &order)
	return order
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type orderJSON struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	BuyerID     string `json:"buyer_id"`
	Status      string `json:"status"`
	Version     int64  `json:"version"`
	Items       []struct {
		ProductID string      `json:"product_id"`
		UnitPrice json.Number `json:"unit_price"`
		Quantity  int         `json:"quantity"`
		LineTotal json.Number `json:"line_total"`
	} `json:"items"`
	Pricing struct {
		Subtotal           json.Number `json:"subtotal"`
		Tax                json.Number `json:"tax"`
		ShippingCost       json.Number `json:"shipping_cost"`
		PlatformCommission json.Number `json:"platform_commission"`
		TotalAmount        json.Number `json:"total_amount"`
	} `json:"pricing"`
	Commissions []struct {
		SellerID string      `json:"seller_id"`
		Rate     json.Number `json:"rate"`
		Amount   json.Number `json:"amount"`
		Payout   json.Number `json:"payout"`
	} `json:"commissions"`
	Payment struct {
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
	} `json:"payment"`
	CancelReason string `json:"cancel_reason"`
}

func envelopeOf(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decode(t *testing.T, w *httptest.ResponseRecorder, target any) apiResponse {
	t.Helper()
	resp := envelopeOf(t, w)
	dec := json.NewDecoder(bytes.NewReader(resp.Data))
	dec.UseNumber()
	require.NoError(t, dec.Decode(target))
	return resp
}

func orderBody(pairs ...any) map[string]any {
	items := make([]map[string]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		items = append(items, map[string]any{"product_id": pairs[i], "quantity": pairs[i+1]})
	}
	return map[string]any{
		"items":          items,
		"payment_method": "card",
		"shipping_address": map[string]any{
			"name":    "Amina Okafor",
			"phone":   "+2348000000000",
			"line1":   "12 Market Road",
			"city":    "Ibadan",
			"state":   "Oyo",
			"country": "NG",
			"zip":     "200001",
		},
	}
}

var errStoreDown = errors.New("connection reset by peer")
