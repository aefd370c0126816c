package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// Buyer is the identity a checkout is placed under.
type Buyer struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u User) Buyer() Buyer {
	return Buyer{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
}

type Product struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

// StockChange is a requested decrement (or, on release, increment) of one
// product's stock.
type StockChange struct {
	ProductID string
	Quantity  int
}

type OrderStatus struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type DeliveryMethod struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ShippingAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

type Order struct {
	ID               string          `json:"id"`
	OrderNumber      string          `json:"order_number"`
	BuyerID          string          `json:"buyer_id"`
	Status           OrderStatus     `json:"status"`
	DeliveryMethod   DeliveryMethod  `json:"delivery_method"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	SalesTax         decimal.Decimal `json:"sales_tax"`
	ShippingRate     decimal.Decimal `json:"shipping_rate"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         string          `json:"currency"`
	Shipping         ShippingAddress `json:"shipping"`
	PaymentReceiptID *string         `json:"payment_receipt_id"`
	Charged          bool            `json:"charged"`
	IdempotencyKey   *string         `json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int             `json:"version"`
	Items            []OrderItem     `json:"items,omitempty"`
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CreatedAt   time.Time       `json:"created_at"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusCancelled = "cancelled"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
)
