package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/takapay/takapay/internal/domain"
)

// MemoryStore is a concurrency-safe in-memory Store. Transactions serialize
// on one mutex and roll back by restoring a snapshot, which gives the same
// all-or-nothing semantics as the Postgres implementation without a database.
// Used by unit tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	holders  map[uuid.UUID]domain.Holder
	phones   map[string]uuid.UUID
	wallets  map[uuid.UUID]domain.Wallet
	entries  []domain.Entry
	payments map[string]domain.Payment
}

// NewMemory creates an empty in-memory store with the platform float wallet
// pre-seeded, mirroring the Postgres migration.
func NewMemory() *MemoryStore {
	s := &MemoryStore{
		holders:  make(map[uuid.UUID]domain.Holder),
		phones:   make(map[string]uuid.UUID),
		wallets:  make(map[uuid.UUID]domain.Wallet),
		payments: make(map[string]domain.Payment),
	}
	system := domain.SystemHolder()
	now := time.Now().UTC()
	s.holders[system] = domain.Holder{
		ID:        system,
		Name:      "platform float",
		Phone:     "system",
		Role:      domain.RoleAdmin,
		Approved:  true,
		CreatedAt: now,
	}
	s.phones["system"] = system
	s.wallets[system] = domain.Wallet{Holder: system, CreatedAt: now, UpdatedAt: now}
	return s
}

type memSnapshot struct {
	wallets  map[uuid.UUID]domain.Wallet
	payments map[string]domain.Payment
	entryLen int
}

func (s *MemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		wallets:  make(map[uuid.UUID]domain.Wallet, len(s.wallets)),
		payments: make(map[string]domain.Payment, len(s.payments)),
		entryLen: len(s.entries),
	}
	for k, v := range s.wallets {
		snap.wallets[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.wallets = snap.wallets
	s.payments = snap.payments
	s.entries = s.entries[:snap.entryLen]
}

// RunInTx serializes all transactions behind the store mutex and restores the
// pre-transaction snapshot if fn fails.
func (s *MemoryStore) RunInTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memTx struct {
	store *MemoryStore
}

func (t *memTx) Holder(_ context.Context, id uuid.UUID) (domain.Holder, error) {
	return t.store.holderLocked(id)
}

func (t *memTx) HolderByPhone(_ context.Context, phone string) (domain.Holder, error) {
	id, ok := t.store.phones[phone]
	if !ok {
		return domain.Holder{}, domain.ErrNotFound
	}
	return t.store.holderLocked(id)
}

func (t *memTx) WalletForUpdate(_ context.Context, holder uuid.UUID) (domain.Wallet, error) {
	w, ok := t.store.wallets[holder]
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return w, nil
}

func (t *memTx) ApplyDelta(_ context.Context, holder uuid.UUID, delta int64) (domain.Wallet, error) {
	w, ok := t.store.wallets[holder]
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	if w.Blocked {
		return domain.Wallet{}, domain.ErrBlocked
	}
	if holder != domain.SystemHolder() && w.Balance+delta < 0 {
		return domain.Wallet{}, domain.ErrInsufficientBalance
	}
	w.Balance += delta
	w.UpdatedAt = time.Now().UTC()
	t.store.wallets[holder] = w
	return w, nil
}

func (t *memTx) AppendEntry(_ context.Context, entry domain.Entry) (uuid.UUID, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	t.store.entries = append(t.store.entries, entry)
	return entry.ID, nil
}

func (t *memTx) CreatePayment(_ context.Context, payment domain.Payment) error {
	if _, exists := t.store.payments[payment.TransactionID]; exists {
		return domain.ErrAlreadyProcessed
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	t.store.payments[payment.TransactionID] = payment
	return nil
}

func (t *memTx) PaymentForUpdate(_ context.Context, transactionID string) (domain.Payment, error) {
	p, ok := t.store.payments[transactionID]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (t *memTx) SetPaymentStatus(_ context.Context, transactionID string, status domain.PaymentStatus, gatewayData []byte) error {
	p, ok := t.store.payments[transactionID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	if len(gatewayData) > 0 {
		p.GatewayData = gatewayData
	}
	p.UpdatedAt = time.Now().UTC()
	t.store.payments[transactionID] = p
	return nil
}

func (s *MemoryStore) holderLocked(id uuid.UUID) (domain.Holder, error) {
	h, ok := s.holders[id]
	if !ok {
		return domain.Holder{}, domain.ErrNotFound
	}
	return h, nil
}

func (s *MemoryStore) Holder(_ context.Context, id uuid.UUID) (domain.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holderLocked(id)
}

func (s *MemoryStore) HolderByPhone(_ context.Context, phone string) (domain.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.phones[phone]
	if !ok {
		return domain.Holder{}, domain.ErrNotFound
	}
	return s.holderLocked(id)
}

func (s *MemoryStore) CreateHolder(_ context.Context, holder domain.Holder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.holders[holder.ID]; exists {
		return domain.ErrAlreadyProcessed
	}
	if holder.CreatedAt.IsZero() {
		holder.CreatedAt = time.Now().UTC()
	}
	s.holders[holder.ID] = holder
	s.phones[holder.Phone] = holder.ID
	return nil
}

func (s *MemoryStore) SetAgentApproval(_ context.Context, agent uuid.UUID, approved bool) (domain.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holders[agent]
	if !ok || h.Role != domain.RoleAgent {
		return domain.Holder{}, domain.ErrNotFound
	}
	h.Approved = approved
	s.holders[agent] = h
	return h, nil
}

func (s *MemoryStore) Wallet(_ context.Context, holder uuid.UUID) (domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[holder]
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return w, nil
}

func (s *MemoryStore) CreateWallet(_ context.Context, holder uuid.UUID) (domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[holder]; exists {
		return domain.Wallet{}, domain.ErrAlreadyProcessed
	}
	now := time.Now().UTC()
	w := domain.Wallet{Holder: holder, CreatedAt: now, UpdatedAt: now}
	s.wallets[holder] = w
	return w, nil
}

func (s *MemoryStore) SetWalletBlocked(_ context.Context, holder uuid.UUID, blocked bool) (domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[holder]
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	w.Blocked = blocked
	w.UpdatedAt = time.Now().UTC()
	s.wallets[holder] = w
	return w, nil
}

func (s *MemoryStore) Wallets(_ context.Context, page, limit int) ([]domain.Wallet, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]domain.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		all = append(all, w)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginateWallets(all, page, limit)
}

func paginateWallets(all []domain.Wallet, page, limit int) ([]domain.Wallet, int64, error) {
	offset, limit := pageOffset(page, limit)
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) filterEntries(match func(domain.Entry) bool, page, limit int) ([]domain.Entry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []domain.Entry
	// Newest first: entries are appended in order.
	for i := len(s.entries) - 1; i >= 0; i-- {
		if match(s.entries[i]) {
			all = append(all, s.entries[i])
		}
	}
	offset, limit := pageOffset(page, limit)
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) EntriesByAccount(_ context.Context, account uuid.UUID, page, limit int) ([]domain.Entry, int64, error) {
	return s.filterEntries(func(e domain.Entry) bool { return e.Account == account }, page, limit)
}

func (s *MemoryStore) EntriesByParty(_ context.Context, holder uuid.UUID, page, limit int) ([]domain.Entry, int64, error) {
	return s.filterEntries(func(e domain.Entry) bool {
		return e.Account == holder && e.Type != domain.EntryCommission
	}, page, limit)
}

func (s *MemoryStore) CommissionEntries(_ context.Context, agent uuid.UUID, page, limit int) ([]domain.Entry, int64, error) {
	return s.filterEntries(func(e domain.Entry) bool {
		return e.Type == domain.EntryCommission && e.To == agent
	}, page, limit)
}

func (s *MemoryStore) AllEntries(_ context.Context, page, limit int) ([]domain.Entry, int64, error) {
	return s.filterEntries(func(domain.Entry) bool { return true }, page, limit)
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	for _, h := range s.holders {
		switch h.Role {
		case domain.RoleUser:
			st.TotalUsers++
		case domain.RoleAgent:
			st.TotalAgents++
		}
	}
	st.TotalEntries = int64(len(s.entries))
	system := domain.SystemHolder()
	for id, w := range s.wallets {
		if id == system {
			continue
		}
		st.TotalBalance += w.Balance
	}
	return st, nil
}

func (s *MemoryStore) Payment(_ context.Context, transactionID string) (domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[transactionID]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) PaymentsByUser(_ context.Context, user uuid.UUID, page, limit int) ([]domain.Payment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []domain.Payment
	for _, p := range s.payments {
		if p.User == user {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	offset, limit := pageOffset(page, limit)
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) LedgerDrift(_ context.Context) ([]Drift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replayed := make(map[uuid.UUID]int64, len(s.wallets))
	for _, e := range s.entries {
		replayed[e.Account] += e.BalanceAfter - e.BalanceBefore
	}

	var drifts []Drift
	for holder, w := range s.wallets {
		if holder == domain.SystemHolder() {
			continue
		}
		if w.Balance != replayed[holder] {
			drifts = append(drifts, Drift{Holder: holder, Balance: w.Balance, Replayed: replayed[holder]})
		}
	}
	return drifts, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)
