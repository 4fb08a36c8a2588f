package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/ledger"
)

// AdminService covers the back-office operations: onboarding holders,
// blocking wallets and approving agents.
type AdminService struct {
	store       ledger.Store
	defaultRate decimal.Decimal
}

func NewAdminService(store ledger.Store, defaultCommissionRate decimal.Decimal) *AdminService {
	return &AdminService{store: store, defaultRate: defaultCommissionRate}
}

// Register creates a holder and its wallet. Agents start unapproved and must
// be approved before they can cash in or out.
func (s *AdminService) Register(ctx context.Context, name, phone string, role domain.Role) (*domain.Holder, error) {
	holder := domain.Holder{
		ID:    uuid.New(),
		Name:  name,
		Phone: phone,
		Role:  role,
	}
	if role == domain.RoleAgent {
		holder.CommissionRate = s.defaultRate
	}
	if _, err := s.store.HolderByPhone(ctx, phone); err == nil {
		return nil, fmt.Errorf("phone %s already registered: %w", phone, domain.ErrAlreadyProcessed)
	}
	if err := s.store.CreateHolder(ctx, holder); err != nil {
		return nil, fmt.Errorf("create holder: %w", err)
	}
	if _, err := s.store.CreateWallet(ctx, holder.ID); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	zap.L().Info("holder registered",
		zap.String("holder", holder.ID.String()),
		zap.String("role", string(role)))
	return &holder, nil
}

// SetBlocked freezes or unfreezes a wallet. A blocked wallet rejects every
// debit and credit until unblocked.
func (s *AdminService) SetBlocked(ctx context.Context, holder uuid.UUID, blocked bool) (*domain.Wallet, error) {
	if holder == domain.SystemHolder() {
		return nil, fmt.Errorf("cannot block the platform float")
	}
	w, err := s.store.SetWalletBlocked(ctx, holder, blocked)
	if err != nil {
		return nil, err
	}
	zap.L().Info("wallet block changed",
		zap.String("holder", holder.String()),
		zap.Bool("blocked", blocked))
	return &w, nil
}

// SetAgentApproval approves or suspends an agent. Suspension takes effect on
// the next cash-in or cash-out attempt.
func (s *AdminService) SetAgentApproval(ctx context.Context, agent uuid.UUID, approved bool) (*domain.Holder, error) {
	h, err := s.store.SetAgentApproval(ctx, agent, approved)
	if err != nil {
		return nil, err
	}
	zap.L().Info("agent approval changed",
		zap.String("agent", agent.String()),
		zap.Bool("approved", approved))
	return &h, nil
}

// Wallet returns one wallet.
func (s *AdminService) Wallet(ctx context.Context, holder uuid.UUID) (*domain.Wallet, error) {
	w, err := s.store.Wallet(ctx, holder)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Wallets lists all wallets, newest first.
func (s *AdminService) Wallets(ctx context.Context, page, limit int) ([]domain.Wallet, Pagination, error) {
	wallets, total, err := s.store.Wallets(ctx, page, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	return wallets, paginate(page, limit, total), nil
}

// Entries pages through the entire ledger, newest first.
func (s *AdminService) Entries(ctx context.Context, page, limit int) ([]domain.Entry, Pagination, error) {
	entries, total, err := s.store.AllEntries(ctx, page, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	return entries, paginate(page, limit, total), nil
}

// Dashboard bundles the platform counters with the latest ledger activity.
type Dashboard struct {
	Stats  ledger.Stats   `json:"stats"`
	Recent []domain.Entry `json:"recent_entries"`
}

// Dashboard aggregates holder counts, ledger size, total customer balance
// and the five most recent entries.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.store.AllEntries(ctx, 1, 5)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Stats: stats, Recent: recent}, nil
}
