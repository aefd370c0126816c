package checkout

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names the class of a checkout failure. Transports map it to status
// codes and metrics use it as the outcome label.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindOutOfStock             Kind = "out_of_stock"
	KindPersistence            Kind = "persistence"
	KindPaymentDeclined        Kind = "payment_declined"
	KindCriticalReconciliation Kind = "critical_reconciliation"
)

// ErrIdempotencyConflict is wrapped in a ValidationError when an idempotency
// key is already bound to an unpaid order or held by an in-flight request.
var ErrIdempotencyConflict = errors.New("idempotency key already in use")

// ValidationError means the request was rejected before any write.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Reason, e.Err)
	}
	return "validation: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// OutOfStockError lists the products a concurrent buyer exhausted. In
// optimistic reservation mode the decrement has already been committed.
type OutOfStockError struct {
	ProductIDs []string
	Products   []string
}

func (e *OutOfStockError) Error() string {
	return "out of stock: " + strings.Join(e.Products, ", ")
}

// PersistenceError is a store failure that happened before any charge.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PaymentDeclinedError wraps the gateway's rejection. No money moved.
type PaymentDeclinedError struct {
	OrderID string
	Err     error
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined for order %s: %v", e.OrderID, e.Err)
}

func (e *PaymentDeclinedError) Unwrap() error { return e.Err }

// CriticalReconciliationError means the gateway charged the buyer but the
// order could not be updated. It must not be retried automatically.
type CriticalReconciliationError struct {
	OrderID        string
	ReceiptID      string
	SupportContact string
	Err            error
}

func (e *CriticalReconciliationError) Error() string {
	return fmt.Sprintf("critical: order %s charged with receipt %s but not updated: %v", e.OrderID, e.ReceiptID, e.Err)
}

func (e *CriticalReconciliationError) Unwrap() error { return e.Err }

// KindOf returns the kind of a checkout error, or "" for anything else.
func KindOf(err error) Kind {
	var (
		validation *ValidationError
		outOfStock *OutOfStockError
		persist    *PersistenceError
		declined   *PaymentDeclinedError
		critical   *CriticalReconciliationError
	)

	switch {
	case errors.As(err, &critical):
		return KindCriticalReconciliation
	case errors.As(err, &declined):
		return KindPaymentDeclined
	case errors.As(err, &outOfStock):
		return KindOutOfStock
	case errors.As(err, &persist):
		return KindPersistence
	case errors.As(err, &validation):
		return KindValidation
	}
	return ""
}

// UserMessage renders err for the buyer. A critical failure never claims the
// card was left uncharged.
func UserMessage(err error) string {
	var (
		validation *ValidationError
		outOfStock *OutOfStockError
		critical   *CriticalReconciliationError
	)

	switch KindOf(err) {
	case KindCriticalReconciliation:
		errors.As(err, &critical)
		msg := fmt.Sprintf("Your payment was received but we could not finalize order %s. Please contact support", critical.OrderID)
		if critical.SupportContact != "" {
			msg += " at " + critical.SupportContact
		}
		return msg + " and quote payment reference " + critical.ReceiptID + ". Do not retry this purchase."
	case KindPaymentDeclined:
		return "Your card was not charged: the payment was declined. Please try a different payment method."
	case KindOutOfStock:
		errors.As(err, &outOfStock)
		return "Sorry, the following products are out of stock: " + strings.Join(outOfStock.Products, ", ") + "."
	case KindPersistence:
		return "We could not place your order right now. Your card was not charged, please try again."
	case KindValidation:
		errors.As(err, &validation)
		if errors.Is(err, ErrIdempotencyConflict) {
			return "This request is already being processed or was not completed. Please start a new checkout."
		}
		return "Invalid checkout request: " + validation.Reason + "."
	}
	return "Something went wrong."
}
