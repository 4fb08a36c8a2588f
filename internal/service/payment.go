package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/gateway"
	"github.com/takapay/takapay/internal/ledger"
)

var paymentTransitions = map[domain.PaymentStatus]map[domain.PaymentStatus]struct{}{
	domain.PaymentPending: {
		domain.PaymentPaid:      {},
		domain.PaymentFailed:    {},
		domain.PaymentCancelled: {},
	},
	domain.PaymentPaid:      {},
	domain.PaymentFailed:    {},
	domain.PaymentCancelled: {},
}

func canTransition(current, next domain.PaymentStatus) bool {
	nextStates, ok := paymentTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// PaymentConfig bounds what a single gateway top-up may be worth, in poisha.
type PaymentConfig struct {
	MinimumTopUp int64
	MaximumTopUp int64
}

// PaymentService tracks external gateway top-ups through their lifecycle.
// Gateways redeliver callbacks, so every transition is resolved against the
// current record inside one transaction, never as a read followed by a
// separate write.
type PaymentService struct {
	store   ledger.Store
	gateway gateway.Gateway
	cfg     PaymentConfig
}

func NewPaymentService(store ledger.Store, gw gateway.Gateway, cfg PaymentConfig) *PaymentService {
	return &PaymentService{store: store, gateway: gw, cfg: cfg}
}

func generateTransactionID() string {
	return fmt.Sprintf("TXN%d%04d", time.Now().UnixMilli(), rand.Intn(10000))
}

// Initiate registers a top-up intent with the gateway and records it PENDING.
// The wallet is only credited later, when the gateway confirms via MarkPaid.
func (s *PaymentService) Initiate(ctx context.Context, user uuid.UUID, amount int64) (*domain.Payment, gateway.Checkout, error) {
	if amount < s.cfg.MinimumTopUp || amount > s.cfg.MaximumTopUp {
		return nil, gateway.Checkout{}, fmt.Errorf("top-up of %d outside [%d, %d]: %w",
			amount, s.cfg.MinimumTopUp, s.cfg.MaximumTopUp, domain.ErrInvalidAmount)
	}

	holder, err := s.store.Holder(ctx, user)
	if err != nil {
		return nil, gateway.Checkout{}, fmt.Errorf("resolve user: %w", err)
	}
	wallet, err := s.store.Wallet(ctx, user)
	if err != nil {
		return nil, gateway.Checkout{}, fmt.Errorf("resolve wallet: %w", err)
	}
	if wallet.Blocked {
		return nil, gateway.Checkout{}, domain.ErrBlocked
	}

	transactionID := generateTransactionID()
	checkout, err := s.gateway.InitiatePayment(ctx, gateway.CheckoutRequest{
		TransactionID: transactionID,
		Phone:         holder.Phone,
		Amount:        amount,
		Currency:      "BDT",
	})
	if err != nil {
		zap.L().Warn("gateway initiate failed",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		return nil, gateway.Checkout{}, fmt.Errorf("initiate payment: %w", err)
	}

	payment := domain.Payment{
		TransactionID: transactionID,
		User:          user,
		Amount:        amount,
		Status:        domain.PaymentPending,
		GatewayData:   []byte(fmt.Sprintf(`{"gateway_ref":%q}`, checkout.GatewayRef)),
	}
	err = s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, gateway.Checkout{}, fmt.Errorf("record payment: %w", err)
	}
	return &payment, checkout, nil
}

// MarkPaid is the success callback. The already-PAID check, the status flip
// and the wallet credit run in one transaction, so a redelivered callback can
// never credit twice.
func (s *PaymentService) MarkPaid(ctx context.Context, transactionID string, gatewayData []byte) (*domain.Payment, error) {
	var out domain.Payment
	err := s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		p, err := tx.PaymentForUpdate(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("load payment %s: %w", transactionID, err)
		}
		if p.Status.Terminal() {
			return fmt.Errorf("payment %s already %s: %w", transactionID, p.Status, domain.ErrAlreadyProcessed)
		}
		if !canTransition(p.Status, domain.PaymentPaid) {
			return fmt.Errorf("invalid payment transition: %s -> %s", p.Status, domain.PaymentPaid)
		}
		if err := tx.SetPaymentStatus(ctx, transactionID, domain.PaymentPaid, gatewayData); err != nil {
			return err
		}
		if _, _, err := depositTx(ctx, tx, p.User, p.Amount, p.User, "gateway top-up"); err != nil {
			return err
		}
		out = p
		out.Status = domain.PaymentPaid
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("payment confirmed",
		zap.String("transaction_id", transactionID),
		zap.String("user", out.User.String()),
		zap.Int64("amount", out.Amount))
	return &out, nil
}

// MarkFailed records a gateway failure callback. Redelivering the same
// terminal outcome is a no-op; a conflicting one is rejected.
func (s *PaymentService) MarkFailed(ctx context.Context, transactionID string, gatewayData []byte) error {
	return s.markTerminal(ctx, transactionID, domain.PaymentFailed, gatewayData)
}

// MarkCancelled records a user-side cancellation callback.
func (s *PaymentService) MarkCancelled(ctx context.Context, transactionID string, gatewayData []byte) error {
	return s.markTerminal(ctx, transactionID, domain.PaymentCancelled, gatewayData)
}

func (s *PaymentService) markTerminal(ctx context.Context, transactionID string, status domain.PaymentStatus, gatewayData []byte) error {
	return s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		p, err := tx.PaymentForUpdate(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("load payment %s: %w", transactionID, err)
		}
		if p.Status == status {
			// Gateways retry callbacks; same outcome twice is fine.
			return nil
		}
		if p.Status.Terminal() {
			return fmt.Errorf("payment %s already %s: %w", transactionID, p.Status, domain.ErrAlreadyProcessed)
		}
		if !canTransition(p.Status, status) {
			return fmt.Errorf("invalid payment transition: %s -> %s", p.Status, status)
		}
		return tx.SetPaymentStatus(ctx, transactionID, status, gatewayData)
	})
}

// Payment returns one payment record by its transaction id.
func (s *PaymentService) Payment(ctx context.Context, transactionID string) (*domain.Payment, error) {
	p, err := s.store.Payment(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByUser returns the user's payment records, newest first.
func (s *PaymentService) ListByUser(ctx context.Context, user uuid.UUID, page, limit int) ([]domain.Payment, int64, error) {
	return s.store.PaymentsByUser(ctx, user, page, limit)
}
