package store

import (
	"context"
	"database/sql"

	"github.com/safar/go-checkout/internal/checkout"
	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/models"
)

var _ checkout.Store = (*Postgres)(nil)

// Postgres adapts the store functions to the checkout service.
type Postgres struct {
	DB *sql.DB
	// TxOptions governs stock writes and order reconciliation, including how
	// often transient failures are retried.
	TxOptions database.TxOptions
}

func NewPostgres(db *sql.DB, reconcileRetries int) *Postgres {
	opts := database.DefaultTxOptions()
	if reconcileRetries > 0 {
		opts.MaxRetries = reconcileRetries
	}
	return &Postgres{DB: db, TxOptions: opts}
}

func (p *Postgres) ProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	return GetProductsByIDs(ctx, p.DB, ids)
}

func (p *Postgres) OrderStatuses(ctx context.Context) ([]models.OrderStatus, error) {
	return ListOrderStatuses(ctx, p.DB)
}

func (p *Postgres) DeliveryMethods(ctx context.Context) ([]models.DeliveryMethod, error) {
	return ListDeliveryMethods(ctx, p.DB)
}

func (p *Postgres) ReserveStock(ctx context.Context, changes []models.StockChange) ([]models.Product, []models.Product, error) {
	return ReserveStock(ctx, p.DB, p.TxOptions, changes)
}

func (p *Postgres) DecrementStock(ctx context.Context, changes []models.StockChange) ([]models.Product, error) {
	return DecrementStock(ctx, p.DB, p.TxOptions, changes)
}

func (p *Postgres) ReleaseStock(ctx context.Context, changes []models.StockChange) error {
	return ReleaseStock(ctx, p.DB, p.TxOptions, changes)
}

func (p *Postgres) CreateOrder(ctx context.Context, order *models.Order) error {
	return InsertOrder(ctx, p.DB, order)
}

func (p *Postgres) MarkOrderCharged(ctx context.Context, orderID, receiptID string) error {
	return MarkOrderCharged(ctx, p.DB, p.TxOptions, orderID, receiptID)
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, orderID, statusID string) error {
	return UpdateOrderStatus(ctx, p.DB, orderID, statusID)
}

func (p *Postgres) OrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return GetOrderByIdempotencyKey(ctx, p.DB, key)
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return GetOrder(ctx, p.DB, id)
}

func (p *Postgres) ListOrders(ctx context.Context, buyerID, cursor string, limit int) (*CursorPage, error) {
	return ListOrdersCursor(ctx, p.DB, buyerID, cursor, limit)
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*models.User, error) {
	return GetUser(ctx, p.DB, id)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}
