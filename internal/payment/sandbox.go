package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/safar/go-checkout/internal/checkout"
)

// Tokens starting with SandboxDeclinePrefix are declined by the sandbox.
const SandboxDeclinePrefix = "tok_decline"

// Sandbox approves every charge except declining tokens. A repeated
// idempotency key returns the receipt of the first charge.
type Sandbox struct {
	mu       sync.Mutex
	receipts map[string]string
}

func NewSandbox() *Sandbox {
	return &Sandbox{receipts: make(map[string]string)}
}

func (s *Sandbox) Charge(ctx context.Context, req checkout.ChargeRequest) (checkout.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return checkout.Receipt{}, err
	}

	if req.AmountMinor <= 0 {
		return checkout.Receipt{}, &GatewayError{Provider: "sandbox", Code: "amount_too_small", Message: "amount must be positive"}
	}
	if strings.HasPrefix(req.Token, SandboxDeclinePrefix) {
		return checkout.Receipt{}, &GatewayError{Provider: "sandbox", Code: "card_declined", DeclineCode: "generic_decline", Message: "your card was declined"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.IdempotencyKey != "" {
		if id, ok := s.receipts[req.IdempotencyKey]; ok {
			return checkout.Receipt{ID: id}, nil
		}
	}

	id := "sbx_" + uuid.NewString()
	if req.IdempotencyKey != "" {
		s.receipts[req.IdempotencyKey] = id
	}
	return checkout.Receipt{ID: id}, nil
}
