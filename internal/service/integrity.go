package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/takapay/takapay/internal/ledger"
	"github.com/takapay/takapay/internal/observability"
)

// IntegrityService verifies ledger invariants.
type IntegrityService struct {
	store ledger.Store
}

// NewIntegrityService creates an integrity service.
func NewIntegrityService(store ledger.Store) *IntegrityService {
	return &IntegrityService{store: store}
}

// Run replays the entry log per wallet and checks every balance against it.
// Drift is reported, never repaired: the entry log is the source of truth and
// a divergence means an operator has to look.
func (s *IntegrityService) Run(ctx context.Context) error {
	drifts, err := s.store.LedgerDrift(ctx)
	if err != nil {
		return fmt.Errorf("run ledger drift check: %w", err)
	}

	if len(drifts) > 0 {
		for _, d := range drifts {
			observability.IncrementLedgerDrift(d.Holder.String())
			zap.L().Error("CRITICAL: wallet balance diverged from entry log",
				zap.String("holder", d.Holder.String()),
				zap.Int64("balance", d.Balance),
				zap.Int64("replayed", d.Replayed))
		}
		return nil
	}

	zap.L().Info("ledger balanced", zap.Int("drifts", 0))
	return nil
}
