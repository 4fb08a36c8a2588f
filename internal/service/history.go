package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/ledger"
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func paginate(page, limit int, total int64) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// HistoryService serves read-only ledger listings.
type HistoryService struct {
	store ledger.Store
}

func NewHistoryService(store ledger.Store) *HistoryService {
	return &HistoryService{store: store}
}

// Transactions lists the holder's money movements, newest first. Each
// operation appears once, from the holder's own side; commission credits
// live in Commissions instead.
func (s *HistoryService) Transactions(ctx context.Context, holder uuid.UUID, page, limit int) ([]domain.Entry, Pagination, error) {
	entries, total, err := s.store.EntriesByParty(ctx, holder, page, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	return entries, paginate(page, limit, total), nil
}

// Statement lists every entry recorded against one wallet, commission
// credits included, which is what a bank-style statement needs.
func (s *HistoryService) Statement(ctx context.Context, account uuid.UUID, page, limit int) ([]domain.Entry, Pagination, error) {
	entries, total, err := s.store.EntriesByAccount(ctx, account, page, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	return entries, paginate(page, limit, total), nil
}

// Commissions lists the commission credits an agent has earned.
func (s *HistoryService) Commissions(ctx context.Context, agent uuid.UUID, page, limit int) ([]domain.Entry, Pagination, error) {
	entries, total, err := s.store.CommissionEntries(ctx, agent, page, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	return entries, paginate(page, limit, total), nil
}
