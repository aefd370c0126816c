package checkout

import (
	"context"
	"errors"

	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/models"
	"github.com/sirupsen/logrus"
)

type ReservationMode string

const (
	// ReserveConditional decrements only when enough stock remains; a
	// shortfall leaves the store untouched.
	ReserveConditional ReservationMode = "conditional"
	// ReserveOptimistic decrements unconditionally and detects negative stock
	// afterwards. A losing request's decrement stays committed.
	ReserveOptimistic ReservationMode = "optimistic"
)

// reserve decrements stock for every line and returns the stored product
// records keyed by id.
func (s *Service) reserve(ctx context.Context, log logrus.FieldLogger, lines []CartLine) (map[string]models.Product, error) {
	changes := stockChanges(lines)

	var (
		stored    []models.Product
		exhausted []models.Product
		err       error
	)

	switch s.mode {
	case ReserveOptimistic:
		stored, err = s.store.DecrementStock(ctx, changes)
		for _, p := range stored {
			if p.StockQuantity < 0 {
				exhausted = append(exhausted, p)
			}
		}
	default:
		stored, exhausted, err = s.store.ReserveStock(ctx, changes)
	}

	if err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			return nil, &ValidationError{Reason: "product no longer exists", Err: err}
		}
		log.WithError(err).Error("stock reservation failed")
		return nil, &PersistenceError{Op: "reserve stock", Err: err}
	}

	if len(exhausted) > 0 {
		oos := &OutOfStockError{}
		for _, p := range exhausted {
			oos.ProductIDs = append(oos.ProductIDs, p.ID)
			oos.Products = append(oos.Products, p.Name)
		}
		log.WithFields(logrus.Fields{
			"products": oos.ProductIDs,
			"mode":     s.mode,
		}).Warn("stock exhausted by concurrent checkout")
		return nil, oos
	}

	byID := make(map[string]models.Product, len(stored))
	for _, p := range stored {
		byID[p.ID] = p
	}
	return byID, nil
}

// release returns reserved stock after a later step failed. Only conditional
// reservations are compensated; failures are logged and swallowed.
func (s *Service) release(ctx context.Context, log logrus.FieldLogger, lines []CartLine) {
	if s.mode != ReserveConditional {
		return
	}

	if err := s.store.ReleaseStock(ctx, stockChanges(lines)); err != nil {
		log.WithError(err).Error("failed to release reserved stock")
		return
	}
	log.Info("reserved stock released")
}
