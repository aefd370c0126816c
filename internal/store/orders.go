package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/models"
)

const orderSelect = `
	SELECT o.id, o.order_number, o.buyer_id,
	       s.id, s.name, d.id, d.name,
	       o.subtotal, o.sales_tax, o.shipping_rate, o.total_amount, o.currency,
	       o.shipping_first_name, o.shipping_last_name, o.shipping_street, o.shipping_city,
	       o.shipping_state, o.shipping_zip_code, o.shipping_country, o.shipping_phone, o.shipping_email,
	       o.payment_receipt_id, o.charged, o.idempotency_key,
	       o.created_at, o.updated_at, o.version
	FROM orders o
	JOIN order_statuses s ON s.id = o.status_id
	JOIN delivery_methods d ON d.id = o.delivery_method_id`

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var receiptID, idempotencyKey sql.NullString

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.BuyerID,
		&order.Status.ID,
		&order.Status.Name,
		&order.DeliveryMethod.ID,
		&order.DeliveryMethod.Name,
		&order.Subtotal,
		&order.SalesTax,
		&order.ShippingRate,
		&order.TotalAmount,
		&order.Currency,
		&order.Shipping.FirstName,
		&order.Shipping.LastName,
		&order.Shipping.Street,
		&order.Shipping.City,
		&order.Shipping.State,
		&order.Shipping.ZipCode,
		&order.Shipping.Country,
		&order.Shipping.Phone,
		&order.Shipping.Email,
		&receiptID,
		&order.Charged,
		&idempotencyKey,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}

	if receiptID.Valid {
		order.PaymentReceiptID = &receiptID.String
	}
	if idempotencyKey.Valid {
		order.IdempotencyKey = &idempotencyKey.String
	}

	return order, nil
}

// InsertOrder persists order and its items in one transaction. ID and
// OrderNumber are assigned when empty; timestamps and version are filled
// from the inserted row.
func InsertOrder(ctx context.Context, db *sql.DB, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = generateOrderNumber()
	}

	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (
				id, order_number, buyer_id, status_id, delivery_method_id,
				subtotal, sales_tax, shipping_rate, total_amount, currency,
				shipping_first_name, shipping_last_name, shipping_street, shipping_city,
				shipping_state, shipping_zip_code, shipping_country, shipping_phone, shipping_email,
				payment_receipt_id, charged, idempotency_key, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			         $20, $21, $22, NOW(), NOW(), 1)
			 RETURNING created_at, updated_at, version`,
			order.ID, order.OrderNumber, order.BuyerID, order.Status.ID, order.DeliveryMethod.ID,
			order.Subtotal, order.SalesTax, order.ShippingRate, order.TotalAmount, order.Currency,
			order.Shipping.FirstName, order.Shipping.LastName, order.Shipping.Street, order.Shipping.City,
			order.Shipping.State, order.Shipping.ZipCode, order.Shipping.Country, order.Shipping.Phone, order.Shipping.Email,
			order.PaymentReceiptID, order.Charged, order.IdempotencyKey,
		).Scan(&order.CreatedAt, &order.UpdatedAt, &order.Version)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID

			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, NOW())
				 RETURNING id, created_at`,
				order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Subtotal,
			).Scan(&item.ID, &item.CreatedAt)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		return nil
	})
}

func GetOrder(ctx context.Context, db *sql.DB, id string) (*models.Order, error) {
	order, err := scanOrder(db.QueryRowContext(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := getOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func GetOrderByIdempotencyKey(ctx context.Context, db *sql.DB, key string) (*models.Order, error) {
	order, err := scanOrder(db.QueryRowContext(ctx, orderSelect+` WHERE o.idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by idempotency key: %w", err)
	}

	items, err := getOrderItems(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func getOrderItems(ctx context.Context, db *sql.DB, orderID string) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price, subtotal, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// MarkOrderCharged records the payment receipt on an order. Transient
// failures are retried; re-running the update is harmless.
func MarkOrderCharged(ctx context.Context, db *sql.DB, opts database.TxOptions, orderID, receiptID string) error {
	return database.WithRetry(ctx, db, opts, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE orders
			 SET payment_receipt_id = $2,
			     charged = TRUE,
			     version = version + 1,
			     updated_at = NOW()
			 WHERE id = $1`,
			orderID, receiptID)
		if err != nil {
			return fmt.Errorf("mark order charged: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return database.ErrOrderNotFound
		}
		return nil
	})
}

func UpdateOrderStatus(ctx context.Context, db *sql.DB, orderID, statusID string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status_id = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $1`,
		orderID, statusID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, buyerID string, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	query := orderSelect + `
		WHERE o.buyer_id = $1
		  AND (o.created_at, o.id) < ($2, $3)
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, buyerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
