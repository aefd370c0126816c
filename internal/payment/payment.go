// Package payment holds the gateways a checkout can charge through.
package payment

import (
	"fmt"

	"github.com/safar/go-checkout/internal/checkout"
	"github.com/safar/go-checkout/internal/config"
	"github.com/sirupsen/logrus"
)

// GatewayError is a rejected charge. Code and DeclineCode carry the
// provider's machine-readable reasons when it sent any.
type GatewayError struct {
	Provider    string
	Code        string
	DeclineCode string
	Message     string
	Err         error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.Code != "" {
		msg += " (" + e.Code
		if e.DeclineCode != "" {
			msg += "/" + e.DeclineCode
		}
		msg += ")"
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// New builds the gateway selected in cfg.
func New(cfg config.PaymentConfig, log *logrus.Logger) (checkout.Gateway, error) {
	switch cfg.Provider {
	case config.PaymentProviderStripe:
		return NewStripe(cfg.StripeSecretKey, nil, log), nil
	case config.PaymentProviderSandbox:
		return NewSandbox(), nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
}
