package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/safar/go-checkout/internal/checkout"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type Stripe struct {
	api *client.API
}

// NewStripe returns a gateway backed by the Stripe charges API. backends may
// be nil to talk to Stripe itself.
func NewStripe(secretKey string, backends *stripe.Backends, log *logrus.Logger) *Stripe {
	if backends == nil && log != nil {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				LeveledLogger: log,
			}),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &stripe.BackendConfig{
				LeveledLogger: log,
			}),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &stripe.BackendConfig{
				LeveledLogger: log,
			}),
		}
	}

	api := &client.API{}
	api.Init(secretKey, backends)
	return &Stripe{api: api}
}

func (s *Stripe) Charge(ctx context.Context, req checkout.ChargeRequest) (checkout.Receipt, error) {
	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
		Source:      &stripe.PaymentSourceSourceParams{Token: stripe.String(req.Token)},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	charge, err := s.api.Charges.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return checkout.Receipt{}, &GatewayError{
				Provider:    "stripe",
				Code:        string(stripeErr.Code),
				DeclineCode: string(stripeErr.DeclineCode),
				Message:     stripeErr.Msg,
				Err:         err,
			}
		}
		return checkout.Receipt{}, fmt.Errorf("stripe charge: %w", err)
	}

	return checkout.Receipt{ID: charge.ID}, nil
}
