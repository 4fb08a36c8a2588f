package gateway

import "context"

// CheckoutRequest describes one top-up intent registered with the external
// payment gateway.
type CheckoutRequest struct {
	TransactionID string
	Phone         string
	Amount        int64
	Currency      string
}

// Checkout is the gateway's answer to a registered intent: where to send the
// payer, and the gateway's own reference for later callbacks.
type Checkout struct {
	RedirectURL string
	GatewayRef  string
}

// Gateway represents the external payment gateway interface.
type Gateway interface {
	// InitiatePayment registers a top-up intent and returns the checkout
	// handle the caller is redirected to. Confirmation arrives later via
	// callback, never from this call.
	InitiatePayment(ctx context.Context, req CheckoutRequest) (Checkout, error)
}
