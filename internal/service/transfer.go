package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/takapay/takapay/internal/domain"
	"github.com/takapay/takapay/internal/ledger"
	"github.com/takapay/takapay/internal/observability"
)

// TransferConfig carries the tariff settings the engine needs. Rates are
// percentages, e.g. "1" means 1%.
type TransferConfig struct {
	TransferFeeRate       decimal.Decimal
	DefaultCommissionRate decimal.Decimal
}

// TransferEngine runs every money-movement operation as one storage
// transaction: balance mutations and their ledger entries commit together or
// not at all.
type TransferEngine struct {
	store ledger.Store
	cfg   TransferConfig
}

func NewTransferEngine(store ledger.Store, cfg TransferConfig) *TransferEngine {
	return &TransferEngine{store: store, cfg: cfg}
}

// finish records the operation counter and folds the transaction error.
func finish(op string, res *Result, err error) (*Result, error) {
	if err != nil {
		observability.IncrementTransfer(op, "error")
		return nil, err
	}
	observability.IncrementTransfer(op, "success")
	return res, nil
}

// Result reports the outcome of one completed operation. Balances holds the
// post-commit balance of every non-system wallet the operation touched.
type Result struct {
	Balances   map[uuid.UUID]int64 `json:"balances"`
	Fee        int64               `json:"fee"`
	Commission int64               `json:"commission"`
	EntryIDs   []uuid.UUID         `json:"entry_ids"`
}

// lockWallets acquires row locks on every listed wallet in ascending id order
// so concurrent operations touching the same wallets cannot deadlock.
func lockWallets(ctx context.Context, tx ledger.Tx, ids ...uuid.UUID) error {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	var prev uuid.UUID
	for i, id := range ids {
		if i > 0 && id == prev {
			continue
		}
		if _, err := tx.WalletForUpdate(ctx, id); err != nil {
			return fmt.Errorf("lock wallet %s: %w", id, err)
		}
		prev = id
	}
	return nil
}

// move applies delta to the entry's account and appends the entry with
// before/after snapshots filled in.
func move(ctx context.Context, tx ledger.Tx, e domain.Entry, delta int64) (domain.Wallet, uuid.UUID, error) {
	w, err := tx.ApplyDelta(ctx, e.Account, delta)
	if err != nil {
		return domain.Wallet{}, uuid.Nil, err
	}
	e.Status = domain.EntryCompleted
	e.BalanceBefore = w.Balance - delta
	e.BalanceAfter = w.Balance
	id, err := tx.AppendEntry(ctx, e)
	if err != nil {
		return domain.Wallet{}, uuid.Nil, err
	}
	return w, id, nil
}

// depositTx credits a wallet inside an already-open transaction. Payment
// reconciliation uses it so the status flip and the credit share one atomic
// scope.
func depositTx(ctx context.Context, tx ledger.Tx, user uuid.UUID, amount int64, initiatedBy uuid.UUID, description string) (domain.Wallet, uuid.UUID, error) {
	if err := lockWallets(ctx, tx, user); err != nil {
		return domain.Wallet{}, uuid.Nil, err
	}
	return move(ctx, tx, domain.Entry{
		Account:     user,
		From:        domain.SystemHolder(),
		To:          user,
		Amount:      amount,
		Type:        domain.EntryDeposit,
		InitiatedBy: initiatedBy,
		Description: description,
	}, amount)
}

// Deposit credits a wallet with money entering from outside the platform.
func (s *TransferEngine) Deposit(ctx context.Context, user uuid.UUID, amount int64, initiatedBy uuid.UUID, description string) (*Result, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	res := &Result{Balances: make(map[uuid.UUID]int64)}
	err := s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		w, entryID, err := depositTx(ctx, tx, user, amount, initiatedBy, description)
		if err != nil {
			return err
		}
		res.Balances[user] = w.Balance
		res.EntryIDs = append(res.EntryIDs, entryID)
		return nil
	})
	return finish("deposit", res, err)
}

// Withdraw debits a wallet for money leaving the platform.
func (s *TransferEngine) Withdraw(ctx context.Context, user uuid.UUID, amount int64, initiatedBy uuid.UUID, description string) (*Result, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	res := &Result{Balances: make(map[uuid.UUID]int64)}
	err := s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		if err := lockWallets(ctx, tx, user); err != nil {
			return err
		}
		w, entryID, err := move(ctx, tx, domain.Entry{
			Account:     user,
			From:        user,
			To:          domain.SystemHolder(),
			Amount:      amount,
			Type:        domain.EntryWithdraw,
			InitiatedBy: initiatedBy,
			Description: description,
		}, -amount)
		if err != nil {
			return err
		}
		res.Balances[user] = w.Balance
		res.EntryIDs = append(res.EntryIDs, entryID)
		return nil
	})
	return finish("withdraw", res, err)
}

// SendMoney moves amount from sender to the wallet behind receiverPhone and
// charges the sender the flat transfer fee on top. The fee is credited to the
// platform float.
func (s *TransferEngine) SendMoney(ctx context.Context, sender uuid.UUID, receiverPhone string, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	fee := domain.Fee(amount, s.cfg.TransferFeeRate)
	res := &Result{Balances: make(map[uuid.UUID]int64), Fee: fee}
	system := domain.SystemHolder()

	err := s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		receiver, err := tx.HolderByPhone(ctx, receiverPhone)
		if err != nil {
			return fmt.Errorf("resolve receiver: %w", err)
		}
		if receiver.ID == sender {
			return fmt.Errorf("send to own wallet: %w", domain.ErrInvalidAmount)
		}
		if err := lockWallets(ctx, tx, sender, receiver.ID, system); err != nil {
			return err
		}

		// Debit sender for amount plus fee, one entry carrying the fee.
		sw, debitID, err := move(ctx, tx, domain.Entry{
			Account:     sender,
			From:        sender,
			To:          receiver.ID,
			Amount:      amount,
			Fee:         fee,
			Type:        domain.EntrySendMoney,
			InitiatedBy: sender,
		}, -(amount + fee))
		if err != nil {
			return err
		}

		// Credit receiver the face amount.
		rw, creditID, err := move(ctx, tx, domain.Entry{
			Account:     receiver.ID,
			From:        sender,
			To:          receiver.ID,
			Amount:      amount,
			Type:        domain.EntryDeposit,
			InitiatedBy: sender,
		}, amount)
		if err != nil {
			return err
		}

		// Fee lands on the platform float. No entry: the sender's entry
		// already records it, and the float is outside the per-wallet
		// replay check.
		if fee > 0 {
			if _, err := tx.ApplyDelta(ctx, system, fee); err != nil {
				return err
			}
		}

		res.Balances[sender] = sw.Balance
		res.Balances[receiver.ID] = rw.Balance
		res.EntryIDs = append(res.EntryIDs, debitID, creditID)
		return nil
	})
	return finish("send_money", res, err)
}

// commissionRate picks the agent's own rate, falling back to the configured
// default when the agent has none set.
func (s *TransferEngine) commissionRate(agent domain.Holder) decimal.Decimal {
	if agent.CommissionRate.IsPositive() {
		return agent.CommissionRate
	}
	return s.cfg.DefaultCommissionRate
}

// requireApprovedAgent re-checks the agent invariant inside the transaction.
// Role checks happen at the edge too, but approval can be suspended between
// request and execution.
func requireApprovedAgent(h domain.Holder) error {
	if h.Role != domain.RoleAgent {
		return fmt.Errorf("holder %s is not an agent: %w", h.ID, domain.ErrNotApproved)
	}
	if !h.Approved {
		return fmt.Errorf("agent %s is suspended: %w", h.ID, domain.ErrNotApproved)
	}
	return nil
}

// CashIn moves cash the agent collected into the user's wallet. The agent's
// commission is funded from the platform float and credited back to the agent
// in the same transaction.
func (s *TransferEngine) CashIn(ctx context.Context, agent uuid.UUID, userPhone string, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	res := &Result{Balances: make(map[uuid.UUID]int64)}
	system := domain.SystemHolder()

	err := s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		agentH, err := tx.Holder(ctx, agent)
		if err != nil {
			return fmt.Errorf("resolve agent: %w", err)
		}
		if err := requireApprovedAgent(agentH); err != nil {
			return err
		}
		user, err := tx.HolderByPhone(ctx, userPhone)
		if err != nil {
			return fmt.Errorf("resolve user: %w", err)
		}
		commission := domain.Commission(amount, s.commissionRate(agentH))
		res.Commission = commission

		if err := lockWallets(ctx, tx, agent, user.ID, system); err != nil {
			return err
		}

		_, debitID, err := move(ctx, tx, domain.Entry{
			Account:     agent,
			From:        agent,
			To:          user.ID,
			Amount:      amount,
			Commission:  commission,
			Type:        domain.EntryCashIn,
			InitiatedBy: agent,
		}, -amount)
		if err != nil {
			return err
		}
		uw, creditID, err := move(ctx, tx, domain.Entry{
			Account:     user.ID,
			From:        agent,
			To:          user.ID,
			Amount:      amount,
			Type:        domain.EntryDeposit,
			InitiatedBy: agent,
		}, amount)
		if err != nil {
			return err
		}
		res.EntryIDs = append(res.EntryIDs, debitID, creditID)

		if commission > 0 {
			if _, err := tx.ApplyDelta(ctx, system, -commission); err != nil {
				return err
			}
			aw, commissionID, err := move(ctx, tx, domain.Entry{
				Account:     agent,
				From:        system,
				To:          agent,
				Amount:      commission,
				Type:        domain.EntryCommission,
				InitiatedBy: agent,
				Description: "cash-in commission",
			}, commission)
			if err != nil {
				return err
			}
			res.Balances[agent] = aw.Balance
			res.EntryIDs = append(res.EntryIDs, commissionID)
		} else {
			aw, err := tx.WalletForUpdate(ctx, agent)
			if err != nil {
				return err
			}
			res.Balances[agent] = aw.Balance
		}
		res.Balances[user.ID] = uw.Balance
		return nil
	})
	return finish("cash_in", res, err)
}

// CashOut hands wallet money to an agent as cash, initiated by the agent. The
// user pays the commission on top and it is retained by the platform float.
func (s *TransferEngine) CashOut(ctx context.Context, agent uuid.UUID, userPhone string, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	res := &Result{Balances: make(map[uuid.UUID]int64)}
	system := domain.SystemHolder()

	err := s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		agentH, err := tx.Holder(ctx, agent)
		if err != nil {
			return fmt.Errorf("resolve agent: %w", err)
		}
		if err := requireApprovedAgent(agentH); err != nil {
			return err
		}
		user, err := tx.HolderByPhone(ctx, userPhone)
		if err != nil {
			return fmt.Errorf("resolve user: %w", err)
		}
		commission := domain.Commission(amount, s.commissionRate(agentH))
		res.Commission = commission

		if err := lockWallets(ctx, tx, agent, user.ID, system); err != nil {
			return err
		}

		uw, debitID, err := move(ctx, tx, domain.Entry{
			Account:     user.ID,
			From:        user.ID,
			To:          agent,
			Amount:      amount,
			Commission:  commission,
			Type:        domain.EntryCashOut,
			InitiatedBy: agent,
		}, -(amount + commission))
		if err != nil {
			return err
		}
		aw, creditID, err := move(ctx, tx, domain.Entry{
			Account:     agent,
			From:        user.ID,
			To:          agent,
			Amount:      amount,
			Type:        domain.EntryDeposit,
			InitiatedBy: agent,
		}, amount)
		if err != nil {
			return err
		}
		res.EntryIDs = append(res.EntryIDs, debitID, creditID)

		if commission > 0 {
			if _, err := tx.ApplyDelta(ctx, system, commission); err != nil {
				return err
			}
		}

		res.Balances[user.ID] = uw.Balance
		res.Balances[agent] = aw.Balance
		return nil
	})
	return finish("cash_out", res, err)
}

// CashOutToAgent is the user-initiated cash-out: the user picks an agent by
// phone, pays the commission on top, and the commission goes to the agent
// rather than the platform.
func (s *TransferEngine) CashOutToAgent(ctx context.Context, user uuid.UUID, agentPhone string, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	res := &Result{Balances: make(map[uuid.UUID]int64)}

	err := s.store.RunInTx(ctx, func(tx ledger.Tx) error {
		agentH, err := tx.HolderByPhone(ctx, agentPhone)
		if err != nil {
			return fmt.Errorf("resolve agent: %w", err)
		}
		if err := requireApprovedAgent(agentH); err != nil {
			return err
		}
		commission := domain.Commission(amount, s.commissionRate(agentH))
		res.Commission = commission

		if err := lockWallets(ctx, tx, user, agentH.ID); err != nil {
			return err
		}

		uw, debitID, err := move(ctx, tx, domain.Entry{
			Account:     user,
			From:        user,
			To:          agentH.ID,
			Amount:      amount,
			Commission:  commission,
			Type:        domain.EntryCashOut,
			InitiatedBy: user,
		}, -(amount + commission))
		if err != nil {
			return err
		}
		aw, creditID, err := move(ctx, tx, domain.Entry{
			Account:     agentH.ID,
			From:        user,
			To:          agentH.ID,
			Amount:      amount,
			Type:        domain.EntryDeposit,
			InitiatedBy: user,
		}, amount)
		if err != nil {
			return err
		}
		res.EntryIDs = append(res.EntryIDs, debitID, creditID)

		if commission > 0 {
			aw2, commissionID, err := move(ctx, tx, domain.Entry{
				Account:     agentH.ID,
				From:        user,
				To:          agentH.ID,
				Amount:      commission,
				Type:        domain.EntryCommission,
				InitiatedBy: user,
				Description: "cash-out commission",
			}, commission)
			if err != nil {
				return err
			}
			aw = aw2
			res.EntryIDs = append(res.EntryIDs, commissionID)
		}

		res.Balances[user] = uw.Balance
		res.Balances[agentH.ID] = aw.Balance
		return nil
	})
	return finish("cash_out_to_agent", res, err)
}
