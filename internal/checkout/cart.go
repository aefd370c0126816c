package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/safar/go-checkout/internal/models"
)

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartLine is a cart item joined with the live product record.
type CartLine struct {
	Product  models.Product
	Quantity int
}

// resolveCart validates items and loads their products, keeping input order.
func resolveCart(ctx context.Context, store Store, items []CartItem) ([]CartLine, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Reason: "cart is empty"}
	}

	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return nil, &ValidationError{Reason: "cart item without product id"}
		}
		if item.Quantity <= 0 {
			return nil, &ValidationError{Reason: fmt.Sprintf("quantity for product %s must be positive", item.ProductID)}
		}
		if seen[item.ProductID] {
			return nil, &ValidationError{Reason: fmt.Sprintf("product %s appears more than once", item.ProductID)}
		}
		seen[item.ProductID] = true
		ids = append(ids, item.ProductID)
	}

	products, err := store.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, &PersistenceError{Op: "load products", Err: err}
	}

	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]CartLine, 0, len(items))
	var unknown []string
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			unknown = append(unknown, item.ProductID)
			continue
		}
		lines = append(lines, CartLine{Product: product, Quantity: item.Quantity})
	}

	if len(unknown) > 0 {
		return nil, &ValidationError{Reason: "unknown products: " + strings.Join(unknown, ", ")}
	}

	return lines, nil
}

func stockChanges(lines []CartLine) []models.StockChange {
	changes := make([]models.StockChange, len(lines))
	for i, line := range lines {
		changes[i] = models.StockChange{ProductID: line.Product.ID, Quantity: line.Quantity}
	}
	return changes
}
