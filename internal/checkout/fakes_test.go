package checkout

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type memStore struct {
	mu       sync.Mutex
	products map[string]*models.Product
	orders   map[string]*models.Order
	statuses []models.OrderStatus
	methods  []models.DeliveryMethod
	nextID   int

	productWrites int

	// priceOnWrite reprices a product as its stock is written, standing in
	// for a price update committed between the cart read and the reservation.
	priceOnWrite map[string]decimal.Decimal
	createErr    error
	markErr      error
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]*models.Product),
		orders:   make(map[string]*models.Order),
		statuses: []models.OrderStatus{
			{ID: "status-pending", Name: models.OrderStatusPending},
			{ID: "status-cancelled", Name: models.OrderStatusCancelled},
		},
		methods: []models.DeliveryMethod{
			{ID: "standard", Name: "Standard shipping"},
		},
	}
}

func (m *memStore) addProduct(id, name, price string, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = &models.Product{
		ID:            id,
		SKU:           "SKU-" + id,
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		Version:       1,
	}
}

func (m *memStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].StockQuantity
}

func (m *memStore) orderList() []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

func (m *memStore) order(id string) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (m *memStore) ProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) OrderStatuses(ctx context.Context) ([]models.OrderStatus, error) {
	return m.statuses, nil
}

func (m *memStore) DeliveryMethods(ctx context.Context) ([]models.DeliveryMethod, error) {
	return m.methods, nil
}

func (m *memStore) ReserveStock(ctx context.Context, changes []models.StockChange) ([]models.Product, []models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var shortages []models.Product
	for _, c := range changes {
		p, ok := m.products[c.ProductID]
		if !ok {
			return nil, nil, database.ErrProductNotFound
		}
		if p.StockQuantity < c.Quantity {
			shortages = append(shortages, *p)
		}
	}
	if len(shortages) > 0 {
		return nil, shortages, nil
	}

	var reserved []models.Product
	for _, c := range changes {
		p := m.products[c.ProductID]
		p.StockQuantity -= c.Quantity
		p.Version++
		if price, ok := m.priceOnWrite[c.ProductID]; ok {
			p.Price = price
		}
		m.productWrites++
		reserved = append(reserved, *p)
	}
	return reserved, nil, nil
}

func (m *memStore) DecrementStock(ctx context.Context, changes []models.StockChange) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var updated []models.Product
	for _, c := range changes {
		p, ok := m.products[c.ProductID]
		if !ok {
			return nil, database.ErrProductNotFound
		}
		p.StockQuantity -= c.Quantity
		p.Version++
		m.productWrites++
		updated = append(updated, *p)
	}
	return updated, nil
}

func (m *memStore) ReleaseStock(ctx context.Context, changes []models.StockChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range changes {
		p, ok := m.products[c.ProductID]
		if !ok {
			return database.ErrProductNotFound
		}
		p.StockQuantity += c.Quantity
		p.Version++
	}
	return nil
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	if order.IdempotencyKey != nil {
		for _, o := range m.orders {
			if o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return fmt.Errorf("create order: %w", database.ErrDuplicateKey)
			}
		}
	}

	m.nextID++
	order.ID = fmt.Sprintf("order-%d", m.nextID)
	order.OrderNumber = fmt.Sprintf("ORD-%d", m.nextID)
	order.Version = 1

	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	m.orders[order.ID] = &stored
	return nil
}

func (m *memStore) MarkOrderCharged(ctx context.Context, orderID, receiptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return m.markErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return database.ErrOrderNotFound
	}
	o.PaymentReceiptID = &receiptID
	o.Charged = true
	o.Version++
	return nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderID, statusID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return database.ErrOrderNotFound
	}
	for _, s := range m.statuses {
		if s.ID == statusID {
			o.Status = s
		}
	}
	o.Version++
	return nil
}

func (m *memStore) OrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, database.ErrOrderNotFound
}

type fakeGateway struct {
	mu      sync.Mutex
	charges []ChargeRequest
	err     error
}

func (g *fakeGateway) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return Receipt{}, g.err
	}
	g.charges = append(g.charges, req)
	return Receipt{ID: fmt.Sprintf("ch_%d", len(g.charges))}, nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

type fakeLocker struct {
	mu   sync.Mutex
	next int
	held map[string]string
}

func (l *fakeLocker) Acquire(ctx context.Context, key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]string)
	}
	if _, ok := l.held[key]; ok {
		return "", nil
	}
	l.next++
	token := fmt.Sprintf("tok-%d", l.next)
	l.held[key] = token
	return token, nil
}

func (l *fakeLocker) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type publishedEvent struct {
	eventType string
	key       string
	payload   any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(ctx context.Context, eventType, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType: eventType, key: key, payload: payload})
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
