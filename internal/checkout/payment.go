package checkout

import (
	"context"
	"time"

	"github.com/safar/go-checkout/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var hundred = decimal.NewFromInt(100)

// toMinorUnits converts an amount to cents, rounding half away from zero.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// charge calls the gateway exactly once for the order total.
func (s *Service) charge(ctx context.Context, log logrus.FieldLogger, order *models.Order, token string) (Receipt, error) {
	key := order.ID
	if order.IdempotencyKey != nil {
		key = *order.IdempotencyKey
	}

	req := ChargeRequest{
		AmountMinor:    toMinorUnits(order.TotalAmount),
		Currency:       order.Currency,
		Token:          token,
		IdempotencyKey: key,
		OrderID:        order.ID,
		Description:    "Order " + order.OrderNumber,
	}

	start := time.Now()
	receipt, err := s.gateway.Charge(ctx, req)
	s.metrics.GatewayDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.WithError(err).WithField("amount_minor", req.AmountMinor).Warn("payment declined")
		return Receipt{}, &PaymentDeclinedError{OrderID: order.ID, Err: err}
	}

	log.WithFields(logrus.Fields{
		"receipt_id":   receipt.ID,
		"amount_minor": req.AmountMinor,
		"currency":     req.Currency,
	}).Info("payment charged")

	return receipt, nil
}
