package checkout

import (
	"context"
	"fmt"

	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/models"
	"github.com/shopspring/decimal"
)

// references holds the lookup rows a checkout needs, fetched once.
type references struct {
	pending   models.OrderStatus
	cancelled *models.OrderStatus
	method    models.DeliveryMethod
}

func loadReferences(ctx context.Context, store Store, methodID string) (references, error) {
	var refs references

	statuses, err := store.OrderStatuses(ctx)
	if err != nil {
		return refs, &PersistenceError{Op: "load order statuses", Err: err}
	}

	foundPending := false
	for _, status := range statuses {
		switch status.Name {
		case models.OrderStatusPending:
			refs.pending = status
			foundPending = true
		case models.OrderStatusCancelled:
			cancelled := status
			refs.cancelled = &cancelled
		}
	}
	if !foundPending {
		return refs, &PersistenceError{
			Op:  "load order statuses",
			Err: fmt.Errorf("status %q: %w", models.OrderStatusPending, database.ErrReferenceMissing),
		}
	}

	methods, err := store.DeliveryMethods(ctx)
	if err != nil {
		return refs, &PersistenceError{Op: "load delivery methods", Err: err}
	}

	for _, method := range methods {
		if method.ID == methodID {
			refs.method = method
			return refs, nil
		}
	}

	return refs, &ValidationError{Reason: fmt.Sprintf("unknown shipping method %s", methodID)}
}

func subtotal(lines []CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return sum
}

// orderTotal is the sum of line prices plus tax and shipping.
func orderTotal(lines []CartLine, salesTax, shippingRate decimal.Decimal) decimal.Decimal {
	return subtotal(lines).Add(salesTax).Add(shippingRate)
}

// buildOrder snapshots the request into a pending, unpaid order. Unit prices
// come from the product rows returned by the reservation write.
func (s *Service) buildOrder(req Request, lines []CartLine, reserved map[string]models.Product, refs references) *models.Order {
	order := &models.Order{
		BuyerID:        req.Buyer.ID,
		Status:         refs.pending,
		DeliveryMethod: refs.method,
		SalesTax:       req.SalesTax,
		ShippingRate:   req.ShippingRate,
		Currency:       s.currency,
		Shipping: models.ShippingAddress{
			FirstName: req.Buyer.FirstName,
			LastName:  req.Buyer.LastName,
			Street:    req.Shipping.Street,
			City:      req.Shipping.City,
			State:     req.Shipping.State,
			ZipCode:   req.Shipping.ZipCode,
			Country:   req.Shipping.Country,
			Phone:     req.Shipping.Phone,
			Email:     req.Shipping.Email,
		},
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	priced := make([]CartLine, len(lines))
	for i, line := range lines {
		product := line.Product
		if stored, ok := reserved[product.ID]; ok {
			product = stored
		}
		priced[i] = CartLine{Product: product, Quantity: line.Quantity}

		order.Items = append(order.Items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}

	order.Subtotal = subtotal(priced)
	order.TotalAmount = orderTotal(priced, req.SalesTax, req.ShippingRate)

	return order
}
