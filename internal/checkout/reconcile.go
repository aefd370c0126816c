package checkout

import (
	"context"

	"github.com/safar/go-checkout/internal/models"
	"github.com/sirupsen/logrus"
)

// reconcile stamps the receipt on the persisted order. Once the gateway has
// charged, any failure here is critical.
func (s *Service) reconcile(ctx context.Context, log logrus.FieldLogger, order *models.Order, receipt Receipt) (*models.Order, error) {
	log = log.WithField("receipt_id", receipt.ID)

	if err := s.store.MarkOrderCharged(ctx, order.ID, receipt.ID); err != nil {
		critical := &CriticalReconciliationError{
			OrderID:        order.ID,
			ReceiptID:      receipt.ID,
			SupportContact: s.supportContact,
			Err:            err,
		}

		log.WithError(err).Error("charged order could not be reconciled, manual review required")
		s.publish(ctx, log, EventReconciliationFailed, order.ID, ReconciliationFailedEvent{
			OrderID:     order.ID,
			ReceiptID:   receipt.ID,
			BuyerID:     order.BuyerID,
			AmountMinor: toMinorUnits(order.TotalAmount),
			Currency:    order.Currency,
			Reason:      err.Error(),
		})
		return nil, critical
	}

	receiptID := receipt.ID
	order.PaymentReceiptID = &receiptID
	order.Charged = true
	order.Version++

	s.publish(ctx, log, EventOrderPaid, order.ID, OrderPaidEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		ReceiptID:   receipt.ID,
		AmountMinor: toMinorUnits(order.TotalAmount),
		Currency:    order.Currency,
	})

	return order, nil
}

func (s *Service) publish(ctx context.Context, log logrus.FieldLogger, eventType, key string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, key, payload); err != nil {
		log.WithError(err).WithField("event_type", eventType).Warn("failed to publish event")
	}
}
