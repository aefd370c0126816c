package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/models"
	"github.com/safar/go-checkout/internal/store"
	"github.com/shopspring/decimal"
)

func newPendingOrder(t *testing.T, db *sql.DB, buyerID string, product *models.Product, qty int) *models.Order {
	t.Helper()

	ctx := context.Background()
	statuses, err := store.ListOrderStatuses(ctx, db)
	if err != nil {
		t.Fatalf("List statuses: %v", err)
	}
	var pending models.OrderStatus
	for _, s := range statuses {
		if s.Name == models.OrderStatusPending {
			pending = s
		}
	}

	lineTotal := product.Price.Mul(decimal.NewFromInt(int64(qty)))
	return &models.Order{
		BuyerID:        buyerID,
		Status:         pending,
		DeliveryMethod: models.DeliveryMethod{ID: "standard"},
		Subtotal:       lineTotal,
		SalesTax:       decimal.RequireFromString("1.00"),
		ShippingRate:   decimal.RequireFromString("5.00"),
		TotalAmount:    lineTotal.Add(decimal.RequireFromString("6.00")),
		Currency:       "usd",
		Shipping: models.ShippingAddress{
			FirstName: "Test", LastName: "Buyer",
			Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701",
			Country: "US", Phone: "555-0100", Email: "buyer@example.com",
		},
		Items: []models.OrderItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    qty,
			UnitPrice:   product.Price,
			Subtotal:    lineTotal,
		}},
	}
}

func TestInsertAndGetOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	buyer := createBuyer(t, db, "test@example.com")

	product, err := store.CreateProduct(ctx, db, "TEST-ORD-001", "Product 1", "Test", decimal.NewFromInt(10), 50)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order := newPendingOrder(t, db, buyer.ID, product, 2)
	if err := store.InsertOrder(ctx, db, order); err != nil {
		t.Fatalf("Insert order: %v", err)
	}

	if order.ID == "" || order.OrderNumber == "" {
		t.Fatalf("Expected id and order number, got %q %q", order.ID, order.OrderNumber)
	}
	if order.Version != 1 || order.Items[0].ID == 0 {
		t.Errorf("Expected version 1 and item id, got %d %d", order.Version, order.Items[0].ID)
	}

	got, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}

	if !got.TotalAmount.Equal(decimal.RequireFromString("26.00")) {
		t.Errorf("Expected total 26.00, got %s", got.TotalAmount)
	}
	if got.Status.Name != models.OrderStatusPending || got.DeliveryMethod.Name != "Standard shipping" {
		t.Errorf("Unexpected references %+v %+v", got.Status, got.DeliveryMethod)
	}
	if got.Charged || got.PaymentReceiptID != nil {
		t.Error("New order must be unpaid")
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 2 {
		t.Errorf("Unexpected items %+v", got.Items)
	}

	if _, err := store.GetOrder(ctx, db, "missing"); err != database.ErrOrderNotFound {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestInsertOrderDuplicateIdempotencyKey(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	buyer := createBuyer(t, db, "idem@example.com")

	product, err := store.CreateProduct(ctx, db, "TEST-ORD-002", "Product 2", "Test", decimal.NewFromInt(10), 50)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	key := "idem-key-1"
	first := newPendingOrder(t, db, buyer.ID, product, 1)
	first.IdempotencyKey = &key
	if err := store.InsertOrder(ctx, db, first); err != nil {
		t.Fatalf("Insert first order: %v", err)
	}

	second := newPendingOrder(t, db, buyer.ID, product, 1)
	second.IdempotencyKey = &key
	err = store.InsertOrder(ctx, db, second)
	if !database.IsUniqueViolation(err) {
		t.Fatalf("Expected unique violation, got %v", err)
	}

	found, err := store.GetOrderByIdempotencyKey(ctx, db, key)
	if err != nil {
		t.Fatalf("Get by idempotency key: %v", err)
	}
	if found.ID != first.ID || found.IdempotencyKey == nil || *found.IdempotencyKey != key {
		t.Errorf("Expected first order, got %+v", found)
	}

	if _, err := store.GetOrderByIdempotencyKey(ctx, db, "unknown"); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestMarkOrderChargedAndStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	buyer := createBuyer(t, db, "paid@example.com")

	product, err := store.CreateProduct(ctx, db, "TEST-ORD-003", "Product 3", "Test", decimal.NewFromInt(10), 50)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order := newPendingOrder(t, db, buyer.ID, product, 1)
	if err := store.InsertOrder(ctx, db, order); err != nil {
		t.Fatalf("Insert order: %v", err)
	}

	if err := store.MarkOrderCharged(ctx, db, database.DefaultTxOptions(), order.ID, "ch_123"); err != nil {
		t.Fatalf("Mark charged: %v", err)
	}
	if err := store.UpdateOrderStatus(ctx, db, order.ID, "status-shipped"); err != nil {
		t.Fatalf("Update status: %v", err)
	}

	got, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if !got.Charged || got.PaymentReceiptID == nil || *got.PaymentReceiptID != "ch_123" {
		t.Errorf("Expected charged with receipt ch_123, got %+v", got)
	}
	if got.Status.Name != models.OrderStatusShipped {
		t.Errorf("Expected shipped, got %s", got.Status.Name)
	}
	if got.Version != 3 {
		t.Errorf("Expected version 3, got %d", got.Version)
	}

	if err := store.MarkOrderCharged(ctx, db, database.DefaultTxOptions(), "missing", "ch_1"); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
	if err := store.UpdateOrderStatus(ctx, db, "missing", "status-shipped"); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestListOrdersCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	buyer := createBuyer(t, db, "history@example.com")
	other := createBuyer(t, db, "other@example.com")

	product, err := store.CreateProduct(ctx, db, "TEST-ORD-005", "Product 5", "Test", decimal.NewFromInt(100), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	for i := 0; i < 15; i++ {
		if err := store.InsertOrder(ctx, db, newPendingOrder(t, db, buyer.ID, product, 1)); err != nil {
			t.Fatalf("Insert order %d: %v", i, err)
		}
	}
	if err := store.InsertOrder(ctx, db, newPendingOrder(t, db, other.ID, product, 1)); err != nil {
		t.Fatalf("Insert other order: %v", err)
	}

	page1, err := store.ListOrdersCursor(ctx, db, buyer.ID, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}

	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}
	if n := len(page1.Items.([]models.Order)); n != 10 {
		t.Errorf("Expected 10 orders on page 1, got %d", n)
	}

	page2, err := store.ListOrdersCursor(ctx, db, buyer.ID, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}

	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}
	if n := len(page2.Items.([]models.Order)); n != 5 {
		t.Errorf("Expected 5 orders on page 2, got %d", n)
	}

	if _, err := store.ListOrdersCursor(ctx, db, buyer.ID, "%%%", 10); !errors.Is(err, store.ErrInvalidCursor) {
		t.Errorf("Expected ErrInvalidCursor, got %v", err)
	}
}

func TestReferenceData(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	statuses, err := store.ListOrderStatuses(ctx, db)
	if err != nil {
		t.Fatalf("List statuses: %v", err)
	}
	if len(statuses) != 4 {
		t.Errorf("Expected 4 seeded statuses, got %d", len(statuses))
	}

	methods, err := store.ListDeliveryMethods(ctx, db)
	if err != nil {
		t.Fatalf("List delivery methods: %v", err)
	}
	if len(methods) != 3 {
		t.Errorf("Expected 3 seeded delivery methods, got %d", len(methods))
	}

	user, err := store.GetUser(ctx, db, createBuyer(t, db, "ref@example.com").ID)
	if err != nil {
		t.Fatalf("Get user: %v", err)
	}
	if user.Buyer().FirstName != "Test" {
		t.Errorf("Unexpected buyer %+v", user.Buyer())
	}
	if _, err := store.GetUser(ctx, db, "missing"); err != database.ErrUserNotFound {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}
