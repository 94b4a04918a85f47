package payments

import (
	"context"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeEscrow implements Escrow over stripe-go PaymentIntent
// hold/capture/cancel flows.
type StripeEscrow struct {
	Currency string
}

// NewStripeEscrow initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeEscrow(currency string) *StripeEscrow {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	if currency == "" {
		currency = "ngn"
	}
	return &StripeEscrow{Currency: currency}
}

// Hold creates a PaymentIntent with capture_method=manual to hold the fare.
// It returns the PaymentIntent ID on success.
func (s *StripeEscrow) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	if currency == "" {
		currency = s.Currency
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeEscrow) Capture(ctx context.Context, holdID string) error {
	_, err := paymentintent.Capture(holdID, nil)
	return err
}

// Release cancels the hold on a PaymentIntent.
func (s *StripeEscrow) Release(ctx context.Context, holdID string) error {
	_, err := paymentintent.Cancel(holdID, nil)
	return err
}
