package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/agromarket/internal/service/payment"
	"github.com/vladislavdragonenkov/agromarket/internal/storage/memory"
)

var (
	buyer    = domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}
	stranger = domain.Actor{ID: "buyer-2", Role: domain.RoleBuyer}
	sellerA  = domain.Actor{ID: "seller-a", Role: domain.RoleSeller}
	sellerB  = domain.Actor{ID: "seller-b", Role: domain.RoleSeller}
	sellerZ  = domain.Actor{ID: "seller-z", Role: domain.RoleSeller}
	admin    = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func address() domain.Address {
	return domain.Address{
		Name:    "Amina Okafor",
		Phone:   "+2348000000000",
		Line1:   "12 Market Road",
		City:    "Ibadan",
		State:   "Oyo",
		Country: "NG",
		Zip:     "200001",
	}
}

func items(pairs ...any) []lifecycle.ItemRequest {
	result := make([]lifecycle.ItemRequest, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		result = append(result, lifecycle.ItemRequest{ProductID: pairs[i].(string), Quantity: pairs[i+1].(int)})
	}
	return result
}

func input(reqs []lifecycle.ItemRequest) lifecycle.CreateOrderInput {
	return lifecycle.CreateOrderInput{
		Items:           reqs,
		ShippingAddress: address(),
		PaymentMethod:   domain.PaymentMethodCard,
	}
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "lifecycle-test")
}

// recordingSink запоминает уведомления.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Notification
	err    error
}

func (s *recordingSink) Notify(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, n)
	return s.err
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]string, len(s.events))
	for i, n := range s.events {
		result[i] = n.Type
	}
	return result
}

// hookedCatalog позволяет вмешаться в Reserve и GetByID.
type hookedCatalog struct {
	*memory.CatalogStore
	beforeReserve func(ctx context.Context, productID string, qty int) error
	beforeGet     func(ctx context.Context, productID string) error
}

func (c *hookedCatalog) GetByID(ctx context.Context, productID string) (domain.Product, error) {
	if c.beforeGet != nil {
		if err := c.beforeGet(ctx, productID); err != nil {
			return domain.Product{}, err
		}
	}
	return c.CatalogStore.GetByID(ctx, productID)
}

func (c *hookedCatalog) Reserve(ctx context.Context, productID string, qty int) error {
	if c.beforeReserve != nil {
		if err := c.beforeReserve(ctx, productID, qty); err != nil {
			return err
		}
	}
	return c.CatalogStore.Reserve(ctx, productID, qty)
}

// conflictingOrders отдаёт ErrOrderVersionConflict на первые conflicts вызовов Update.
type conflictingOrders struct {
	*memory.OrderRepository
	mu        sync.Mutex
	conflicts int
	updates   int
}

func (r *conflictingOrders) Update(ctx context.Context, order domain.Order) error {
	r.mu.Lock()
	r.updates++
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return domain.ErrOrderVersionConflict
	}
	r.mu.Unlock()
	return r.OrderRepository.Update(ctx, order)
}

type fixture struct {
	engine   *lifecycle.Engine
	catalog  *memory.CatalogStore
	orders   *memory.OrderRepository
	timeline *memory.TimelineRepository
	payments *payment.MockGateway
	sink     *recordingSink
}

type fixtureConfig struct {
	transactional bool
	cfg           *lifecycle.Config
	catalog       func(store *memory.CatalogStore) domain.CatalogStore
	orders        func(repo *memory.OrderRepository) domain.OrderRepository
	opts          []lifecycle.Option
}

// newFixture собирает движок поверх in-memory хранилищ с двумя продавцами:
// tomatoes (seller-a, 10.00, 10 шт.) и honey (seller-b, 5.00, 5 шт.).
func newFixture(t *testing.T, fc fixtureConfig) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		catalog:  memory.NewCatalogStore(),
		orders:   memory.NewOrderRepository(),
		timeline: memory.NewTimelineRepository(),
		payments: payment.NewMockGateway(),
		sink:     &recordingSink{},
	}
	require.NoError(t, f.catalog.Upsert(ctx, domain.Product{
		ID: "tomatoes", Name: "Roma tomatoes", SellerID: "seller-a", SellerName: "Green Acre",
		Price: dec("10.00"), Stock: 10, Unit: "kg",
	}))
	require.NoError(t, f.catalog.Upsert(ctx, domain.Product{
		ID: "honey", Name: "Wild honey", SellerID: "seller-b", SellerName: "Bee Farm",
		Price: dec("5.00"), Stock: 5, Unit: "jar",
	}))

	cfg := lifecycle.DefaultConfig()
	cfg.Pricing = domain.PricingConfig{TaxRate: dec("0.1"), CommissionRate: dec("0.1"), DefaultShipping: dec("2.00")}
	cfg.Retry.InitialDelay = time.Millisecond
	if fc.cfg != nil {
		cfg = *fc.cfg
	}

	var catalog domain.CatalogStore = f.catalog
	if fc.catalog != nil {
		catalog = fc.catalog(f.catalog)
	}
	var orders domain.OrderRepository = f.orders
	if fc.orders != nil {
		orders = fc.orders(f.orders)
	}

	opts := []lifecycle.Option{
		lifecycle.WithLogger(quietLogger()),
		lifecycle.WithTimeline(f.timeline),
		lifecycle.WithPaymentGateway(f.payments),
		lifecycle.WithNotificationSink(f.sink),
	}
	if fc.transactional {
		opts = append(opts, lifecycle.WithTransactionalStore(memory.NewTransactionalStore(f.catalog, f.orders)))
	}
	opts = append(opts, fc.opts...)

	engine, err := lifecycle.NewEngine(catalog, orders, cfg, opts...)
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := f.catalog.GetByID(context.Background(), productID)
	require.NoError(t, err)
	return product.Stock
}

func (f *fixture) stored(t *testing.T, orderID string) domain.Order {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	return order
}

// bothPaths прогоняет тест на транзакционном и компенсирующем пути оформления.
func bothPaths(t *testing.T, run func(t *testing.T, transactional bool)) {
	t.Run("transactional", func(t *testing.T) { run(t, true) })
	t.Run("compensating", func(t *testing.T) { run(t, false) })
}

var errStoreDown = errors.New("connection refused")
