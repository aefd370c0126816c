// Package checkout runs a cart through stock reservation, order creation,
// payment and reconciliation, stopping at the first failure.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

type Request struct {
	Buyer            models.Buyer
	Cart             []CartItem
	TotalPrice       decimal.Decimal
	SalesTax         decimal.Decimal
	ShippingRate     decimal.Decimal
	ShippingMethodID string
	Shipping         Address
	PaymentToken     string
	// IdempotencyKey is optional. A repeated key returns the order already
	// paid under it instead of charging again.
	IdempotencyKey string
}

type Options struct {
	ReservationMode ReservationMode
	Currency        string
	SupportContact  string
	Logger          logrus.FieldLogger
	Metrics         *Metrics
	Locker          Locker
	Publisher       Publisher
}

type Service struct {
	store          Store
	gateway        Gateway
	mode           ReservationMode
	currency       string
	supportContact string
	log            logrus.FieldLogger
	metrics        *Metrics
	locker         Locker
	publisher      Publisher
}

func New(store Store, gateway Gateway, opts Options) *Service {
	s := &Service{
		store:          store,
		gateway:        gateway,
		mode:           opts.ReservationMode,
		currency:       strings.ToLower(opts.Currency),
		supportContact: opts.SupportContact,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		locker:         opts.Locker,
		publisher:      opts.Publisher,
	}

	if s.mode == "" {
		s.mode = ReserveConditional
	}
	if s.currency == "" {
		s.currency = "usd"
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}

	return s
}

// Checkout places and pays for an order. Errors are one of ValidationError,
// OutOfStockError, PersistenceError, PaymentDeclinedError or
// CriticalReconciliationError.
func (s *Service) Checkout(ctx context.Context, req Request) (order *models.Order, err error) {
	start := time.Now()
	replayed := false
	defer func() {
		s.metrics.Outcomes.WithLabelValues(outcomeOf(err, replayed)).Inc()
		s.metrics.Duration.Observe(time.Since(start).Seconds())
	}()

	log := s.log.WithField("buyer_id", req.Buyer.ID)
	if req.IdempotencyKey != "" {
		log = log.WithField("idempotency_key", req.IdempotencyKey)
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.replay(ctx, req.IdempotencyKey)
		if err != nil || existing != nil {
			replayed = existing != nil
			return existing, err
		}

		unlock, err := s.lock(ctx, log, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	lines, err := resolveCart(ctx, s.store, req.Cart)
	if err != nil {
		return nil, err
	}

	refs, err := loadReferences(ctx, s.store, req.ShippingMethodID)
	if err != nil {
		return nil, err
	}

	if expected := orderTotal(lines, req.SalesTax, req.ShippingRate); !expected.Equal(req.TotalPrice) {
		return nil, &ValidationError{Reason: fmt.Sprintf("total price %s does not match computed total %s", req.TotalPrice, expected)}
	}

	reserved, err := s.reserve(ctx, log.WithField("step", "reserve"), lines)
	if err != nil {
		return nil, err
	}

	order = s.buildOrder(req, lines, reserved, refs)
	if !order.TotalAmount.Equal(req.TotalPrice) {
		priceLog := log.WithField("step", "reserve")
		priceLog.WithFields(logrus.Fields{
			"expected": req.TotalPrice.String(),
			"actual":   order.TotalAmount.String(),
		}).Warn("prices changed during reservation")
		s.release(context.WithoutCancel(ctx), priceLog, lines)
		return nil, &ValidationError{Reason: fmt.Sprintf("total price %s no longer matches current total %s", req.TotalPrice, order.TotalAmount)}
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		orderLog := log.WithField("step", "create_order")
		s.release(context.WithoutCancel(ctx), orderLog, lines)

		if req.IdempotencyKey != "" && database.IsUniqueViolation(err) {
			existing, replayErr := s.replay(ctx, req.IdempotencyKey)
			if replayErr != nil || existing != nil {
				replayed = existing != nil
				return existing, replayErr
			}
		}

		orderLog.WithError(err).Error("failed to save order")
		return nil, &PersistenceError{Op: "create order", Err: err}
	}

	log = log.WithField("order_id", order.ID)

	// The charge cannot be undone, so nothing after it may be abandoned
	// because the caller went away.
	ctx = context.WithoutCancel(ctx)

	receipt, err := s.charge(ctx, log.WithField("step", "charge"), order, req.PaymentToken)
	if err != nil {
		s.abandon(ctx, log.WithField("step", "charge"), order, lines, refs)
		return nil, err
	}

	return s.reconcile(ctx, log.WithField("step", "reconcile"), order, receipt)
}

// replay returns the order already paid under key, nil when there is none,
// or a conflict when the key belongs to an unpaid order.
func (s *Service) replay(ctx context.Context, key string) (*models.Order, error) {
	existing, err := s.store.OrderByIdempotencyKey(ctx, key)
	if errors.Is(err, database.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load order by idempotency key", Err: err}
	}

	if !existing.Charged {
		return nil, &ValidationError{Reason: "idempotency key belongs to an unpaid order", Err: ErrIdempotencyConflict}
	}

	s.log.WithFields(logrus.Fields{
		"order_id":        existing.ID,
		"idempotency_key": key,
	}).Info("replaying paid order")
	return existing, nil
}

func (s *Service) lock(ctx context.Context, log logrus.FieldLogger, key string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	token, err := s.locker.Acquire(ctx, key)
	if err != nil {
		// The unique idempotency column still rejects duplicates.
		log.WithError(err).Warn("idempotency lock unavailable, continuing without it")
		return noop, nil
	}
	if token == "" {
		return nil, &ValidationError{Reason: "a checkout with this idempotency key is in progress", Err: ErrIdempotencyConflict}
	}

	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.WithError(err).Warn("failed to release idempotency lock")
		}
	}, nil
}

// abandon undoes what it can after a declined charge.
func (s *Service) abandon(ctx context.Context, log logrus.FieldLogger, order *models.Order, lines []CartLine, refs references) {
	s.release(ctx, log, lines)

	if refs.cancelled == nil {
		return
	}
	if err := s.store.UpdateOrderStatus(ctx, order.ID, refs.cancelled.ID); err != nil {
		log.WithError(err).Error("failed to cancel declined order")
	}
}

func validateRequest(req Request) error {
	if req.Buyer.ID == "" {
		return &ValidationError{Reason: "buyer is required"}
	}

	amounts := []struct {
		name  string
		value decimal.Decimal
	}{
		{"total price", req.TotalPrice},
		{"sales tax", req.SalesTax},
		{"shipping rate", req.ShippingRate},
	}
	for _, amount := range amounts {
		if amount.value.IsNegative() {
			return &ValidationError{Reason: amount.name + " must not be negative"}
		}
		// Amounts are stored as NUMERIC(12,2).
		if !amount.value.Equal(amount.value.Round(2)) {
			return &ValidationError{Reason: amount.name + " must not have more than two decimal places"}
		}
	}

	required := []struct {
		name  string
		value string
	}{
		{"shipping method", req.ShippingMethodID},
		{"street", req.Shipping.Street},
		{"city", req.Shipping.City},
		{"state", req.Shipping.State},
		{"zip code", req.Shipping.ZipCode},
		{"country", req.Shipping.Country},
		{"phone", req.Shipping.Phone},
		{"email", req.Shipping.Email},
		{"payment token", req.PaymentToken},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return &ValidationError{Reason: field.name + " is required"}
		}
	}

	return nil
}
