package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/safar/go-checkout/internal/checkout"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
)

func newStripeTestGateway(t *testing.T, handler http.HandlerFunc) *Stripe {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log,
	})
	return NewStripe("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend}, log)
}

func TestStripeCharge(t *testing.T) {
	var gotAmount, gotCurrency, gotKey, gotOrder string

	gw := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/charges" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("Parse form: %v", err)
		}
		gotAmount = r.PostForm.Get("amount")
		gotCurrency = r.PostForm.Get("currency")
		gotOrder = r.PostForm.Get("metadata[order_id]")
		gotKey = r.Header.Get("Idempotency-Key")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"ch_123","object":"charge","amount":2600,"currency":"usd","paid":true}`)
	})

	receipt, err := gw.Charge(context.Background(), checkout.ChargeRequest{
		AmountMinor:    2600,
		Currency:       "usd",
		Token:          "tok_visa",
		IdempotencyKey: "idem-1",
		OrderID:        "order-1",
		Description:    "Order ORD-1",
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}

	if receipt.ID != "ch_123" {
		t.Errorf("Expected ch_123, got %s", receipt.ID)
	}
	if gotAmount != "2600" || gotCurrency != "usd" {
		t.Errorf("Unexpected amount/currency %s/%s", gotAmount, gotCurrency)
	}
	if gotKey != "idem-1" {
		t.Errorf("Expected idempotency key idem-1, got %q", gotKey)
	}
	if gotOrder != "order-1" {
		t.Errorf("Expected order metadata, got %q", gotOrder)
	}
}

func TestStripeChargeDeclined(t *testing.T) {
	gw := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`)
	})

	_, err := gw.Charge(context.Background(), checkout.ChargeRequest{AmountMinor: 2600, Currency: "usd", Token: "tok_chargeDeclined"})

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("Expected GatewayError, got %v", err)
	}
	if gwErr.Code != "card_declined" || gwErr.DeclineCode != "insufficient_funds" {
		t.Errorf("Unexpected codes %s/%s", gwErr.Code, gwErr.DeclineCode)
	}
}
