package payments

import "context"

// Escrow holds the accepted fare until the order completes. The lifecycle
// calls Hold on acceptance, Capture on completion and Release on cancellation,
// all best-effort.
type Escrow interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, holdID string) error
	Release(ctx context.Context, holdID string) error
}

// NopEscrow is used when no payment backend is configured.
type NopEscrow struct{}

func (NopEscrow) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	return "", nil
}
func (NopEscrow) Capture(ctx context.Context, holdID string) error { return nil }
func (NopEscrow) Release(ctx context.Context, holdID string) error { return nil }
