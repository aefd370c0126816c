package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, description, price, stock_quantity, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.StockQuantity,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func CreateProduct(ctx context.Context, db *sql.DB, sku, name, description string, price decimal.Decimal, stock int) (*models.Product, error) {
	query := `
		INSERT INTO products (id, sku, name, description, price, stock_quantity, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query, uuid.NewString(), sku, name, description, price, stock))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProductsByIDs returns the products matching ids. Unknown ids are simply
// absent from the result; callers decide whether that is an error.
func GetProductsByIDs(ctx context.Context, db *sql.DB, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	rows, err := db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// ReserveStock decrements every product in one transaction, each update
// guarded by stock_quantity >= requested. If any product is short the whole
// batch is rolled back and the short products are returned with their
// current stock; reserved is nil in that case.
func ReserveStock(ctx context.Context, db *sql.DB, opts database.TxOptions, changes []models.StockChange) (reserved, shortages []models.Product, err error) {
	ordered := sortedChanges(changes)

	err = database.WithRetry(ctx, db, opts, func(tx *sql.Tx) error {
		reserved, shortages = nil, nil

		for _, change := range ordered {
			product, err := scanProduct(tx.QueryRowContext(ctx,
				`UPDATE products
				 SET stock_quantity = stock_quantity - $1,
				     version = version + 1,
				     updated_at = NOW()
				 WHERE id = $2
				   AND stock_quantity >= $1
				 RETURNING `+productColumns,
				change.Quantity, change.ProductID))
			if err == nil {
				reserved = append(reserved, *product)
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("reserve stock for %s: %w", change.ProductID, err)
			}

			current, err := scanProduct(tx.QueryRowContext(ctx,
				`SELECT `+productColumns+` FROM products WHERE id = $1`, change.ProductID))
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("reserve stock for %s: %w", change.ProductID, database.ErrProductNotFound)
				}
				return fmt.Errorf("read stock for %s: %w", change.ProductID, err)
			}
			shortages = append(shortages, *current)
		}

		if len(shortages) > 0 {
			return database.ErrInsufficientStock
		}
		return nil
	})

	if errors.Is(err, database.ErrInsufficientStock) {
		return nil, shortages, nil
	}
	if err != nil {
		return nil, nil, err
	}

	return reserved, nil, nil
}

// DecrementStock applies every decrement unconditionally in one transaction
// and returns the rows as stored. Quantities may come back negative when a
// concurrent checkout won the race; detecting that is up to the caller.
func DecrementStock(ctx context.Context, db *sql.DB, opts database.TxOptions, changes []models.StockChange) ([]models.Product, error) {
	ordered := sortedChanges(changes)

	var updated []models.Product
	err := database.WithRetry(ctx, db, opts, func(tx *sql.Tx) error {
		updated = updated[:0]

		for _, change := range ordered {
			product, err := scanProduct(tx.QueryRowContext(ctx,
				`UPDATE products
				 SET stock_quantity = stock_quantity - $1,
				     version = version + 1,
				     updated_at = NOW()
				 WHERE id = $2
				 RETURNING `+productColumns,
				change.Quantity, change.ProductID))
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("decrement stock for %s: %w", change.ProductID, database.ErrProductNotFound)
				}
				return fmt.Errorf("decrement stock for %s: %w", change.ProductID, err)
			}
			updated = append(updated, *product)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// ReleaseStock returns previously reserved quantities to stock.
func ReleaseStock(ctx context.Context, db *sql.DB, opts database.TxOptions, changes []models.StockChange) error {
	ordered := sortedChanges(changes)

	return database.WithRetry(ctx, db, opts, func(tx *sql.Tx) error {
		for _, change := range ordered {
			result, err := tx.ExecContext(ctx,
				`UPDATE products
				 SET stock_quantity = stock_quantity + $1,
				     version = version + 1,
				     updated_at = NOW()
				 WHERE id = $2`,
				change.Quantity, change.ProductID)
			if err != nil {
				return fmt.Errorf("release stock for %s: %w", change.ProductID, err)
			}

			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("get rows affected: %w", err)
			}
			if rowsAffected == 0 {
				return fmt.Errorf("release stock for %s: %w", change.ProductID, database.ErrProductNotFound)
			}
		}
		return nil
	})
}

// sortedChanges orders updates by product id so concurrent batches take row
// locks in the same order.
func sortedChanges(changes []models.StockChange) []models.StockChange {
	ordered := make([]models.StockChange, len(changes))
	copy(ordered, changes)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ProductID < ordered[j].ProductID
	})
	return ordered
}
