package checkout

import (
	"context"

	"github.com/safar/go-checkout/internal/models"
)

// Store is the data-store capability the checkout runs against.
// OrderByIdempotencyKey returns database.ErrOrderNotFound when no order
// carries the key, and CreateOrder reports a reused key as a unique violation.
type Store interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	OrderStatuses(ctx context.Context) ([]models.OrderStatus, error)
	DeliveryMethods(ctx context.Context) ([]models.DeliveryMethod, error)

	// ReserveStock is all-or-nothing: on any shortfall nothing is written and
	// the short products come back with their current stock.
	ReserveStock(ctx context.Context, changes []models.StockChange) (reserved, shortages []models.Product, err error)
	// DecrementStock writes every decrement unconditionally and returns the
	// stored rows, which may be negative.
	DecrementStock(ctx context.Context, changes []models.StockChange) ([]models.Product, error)
	ReleaseStock(ctx context.Context, changes []models.StockChange) error

	CreateOrder(ctx context.Context, order *models.Order) error
	MarkOrderCharged(ctx context.Context, orderID, receiptID string) error
	UpdateOrderStatus(ctx context.Context, orderID, statusID string) error
	OrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
}

type ChargeRequest struct {
	AmountMinor    int64
	Currency       string
	Token          string
	IdempotencyKey string
	OrderID        string
	Description    string
}

type Receipt struct {
	ID string
}

// Gateway charges a payment token. A returned error means the charge did not
// happen.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
}

// Locker guards an idempotency key while a checkout holding it is in flight.
// Acquire returns an ownership token, empty when the key is taken; Release
// frees the key only while it still carries that token.
type Locker interface {
	Acquire(ctx context.Context, key string) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

// Publisher emits checkout events for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

const (
	EventOrderPaid            = "order.paid"
	EventReconciliationFailed = "checkout.reconciliation_failed"
)

type OrderPaidEvent struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	BuyerID     string `json:"buyer_id"`
	ReceiptID   string `json:"receipt_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type ReconciliationFailedEvent struct {
	OrderID     string `json:"order_id"`
	ReceiptID   string `json:"receipt_id"`
	BuyerID     string `json:"buyer_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Reason      string `json:"reason"`
}
