package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-checkout/internal/models"
)

func ListOrderStatuses(ctx context.Context, db *sql.DB) ([]models.OrderStatus, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM order_statuses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list order statuses: %w", err)
	}
	defer rows.Close()

	var statuses []models.OrderStatus
	for rows.Next() {
		var status models.OrderStatus
		if err := rows.Scan(&status.ID, &status.Name); err != nil {
			return nil, fmt.Errorf("scan order status: %w", err)
		}
		statuses = append(statuses, status)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return statuses, nil
}

func ListDeliveryMethods(ctx context.Context, db *sql.DB) ([]models.DeliveryMethod, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM delivery_methods ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list delivery methods: %w", err)
	}
	defer rows.Close()

	var methods []models.DeliveryMethod
	for rows.Next() {
		var method models.DeliveryMethod
		if err := rows.Scan(&method.ID, &method.Name); err != nil {
			return nil, fmt.Errorf("scan delivery method: %w", err)
		}
		methods = append(methods, method)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return methods, nil
}
