package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// MockGateway simulates the external payment gateway for local runs and
// tests. It introduces a short random delay and fails a configurable fraction
// of the time.
type MockGateway struct {
	// FailureRate is the probability of failure (0.0 to 1.0).
	FailureRate float64
	// Delay caps the simulated network latency. Zero means no delay.
	Delay time.Duration
	// BaseURL prefixes the fake checkout redirect.
	BaseURL string
}

// NewMockGateway creates a MockGateway with a 10% failure rate and a small
// latency, mimicking a flaky sandbox environment.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		FailureRate: 0.1,
		Delay:       500 * time.Millisecond,
		BaseURL:     "https://sandbox.gateway.example/checkout",
	}
}

// InitiatePayment simulates registering a checkout with the gateway. It
// sleeps up to Delay, then randomly fails based on FailureRate. On success it
// returns a fake redirect URL and reference.
func (g *MockGateway) InitiatePayment(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if g.Delay > 0 {
		jitter := time.Duration(rand.Int63n(int64(g.Delay)))
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return Checkout{}, fmt.Errorf("gateway call canceled: %w", ctx.Err())
		}
	}

	if rand.Float64() < g.FailureRate {
		return Checkout{}, fmt.Errorf("gateway temporarily unavailable")
	}

	ref := fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	return Checkout{
		RedirectURL: fmt.Sprintf("%s/%s", g.BaseURL, req.TransactionID),
		GatewayRef:  ref,
	}, nil
}

var _ Gateway = (*MockGateway)(nil)
