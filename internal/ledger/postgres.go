package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/takapay/takapay/internal/domain"
)

// PostgresStore implements Store on a pgx connection pool. Atomicity and
// isolation come from Postgres transactions; multi-wallet operations rely on
// SELECT ... FOR UPDATE row locks taken in ascending holder-id order.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTx executes fn within a database transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return storageErr(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const holderColumns = `id, name, phone, role, approved, commission_rate, created_at`

func scanHolder(row pgx.Row) (domain.Holder, error) {
	var h domain.Holder
	err := row.Scan(&h.ID, &h.Name, &h.Phone, &h.Role, &h.Approved, &h.CommissionRate, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Holder{}, domain.ErrNotFound
		}
		return domain.Holder{}, storageErr(fmt.Errorf("scan holder: %w", err))
	}
	return h, nil
}

func holderByID(ctx context.Context, q querier, id uuid.UUID) (domain.Holder, error) {
	return scanHolder(q.QueryRow(ctx, `SELECT `+holderColumns+` FROM holders WHERE id = $1`, id))
}

func holderByPhone(ctx context.Context, q querier, phone string) (domain.Holder, error) {
	return scanHolder(q.QueryRow(ctx, `SELECT `+holderColumns+` FROM holders WHERE phone = $1`, phone))
}

func (t *pgTx) Holder(ctx context.Context, id uuid.UUID) (domain.Holder, error) {
	return holderByID(ctx, t.tx, id)
}

func (t *pgTx) HolderByPhone(ctx context.Context, phone string) (domain.Holder, error) {
	return holderByPhone(ctx, t.tx, phone)
}

func (t *pgTx) WalletForUpdate(ctx context.Context, holder uuid.UUID) (domain.Wallet, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT holder_id, balance, blocked, created_at, updated_at
		FROM wallets WHERE holder_id = $1
		FOR UPDATE`, holder)
	return scanWallet(row)
}

func (t *pgTx) ApplyDelta(ctx context.Context, holder uuid.UUID, delta int64) (domain.Wallet, error) {
	w, err := t.WalletForUpdate(ctx, holder)
	if err != nil {
		return domain.Wallet{}, err
	}
	if w.Blocked {
		return domain.Wallet{}, domain.ErrBlocked
	}
	// The platform float may run a short position; every other wallet must
	// stay non-negative.
	if holder != domain.SystemHolder() && w.Balance+delta < 0 {
		return domain.Wallet{}, domain.ErrInsufficientBalance
	}

	row := t.tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance + $1, updated_at = NOW()
		WHERE holder_id = $2
		RETURNING holder_id, balance, blocked, created_at, updated_at`, delta, holder)
	return scanWallet(row)
}

func (t *pgTx) AppendEntry(ctx context.Context, entry domain.Entry) (uuid.UUID, error) {
	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO entries (id, account_id, from_id, to_id, amount, fee, commission, type, status, balance_before, balance_after, initiated_by, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())`,
		id, entry.Account, entry.From, entry.To, entry.Amount, entry.Fee, entry.Commission,
		entry.Type, entry.Status, entry.BalanceBefore, entry.BalanceAfter, entry.InitiatedBy, entry.Description)
	if err != nil {
		return uuid.Nil, storageErr(fmt.Errorf("append ledger entry: %w", err))
	}
	return id, nil
}

func (t *pgTx) CreatePayment(ctx context.Context, payment domain.Payment) error {
	gatewayData := payment.GatewayData
	if len(gatewayData) == 0 {
		gatewayData = []byte(`{}`)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (transaction_id, user_id, amount, status, gateway_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		payment.TransactionID, payment.User, payment.Amount, payment.Status, gatewayData)
	if err != nil {
		return storageErr(fmt.Errorf("create payment: %w", err))
	}
	return nil
}

func (t *pgTx) PaymentForUpdate(ctx context.Context, transactionID string) (domain.Payment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT transaction_id, user_id, amount, status, gateway_data, created_at, updated_at
		FROM payments WHERE transaction_id = $1
		FOR UPDATE`, transactionID)
	return scanPayment(row)
}

func (t *pgTx) SetPaymentStatus(ctx context.Context, transactionID string, status domain.PaymentStatus, gatewayData []byte) error {
	var tag pgconn.CommandTag
	var err error
	if len(gatewayData) > 0 {
		tag, err = t.tx.Exec(ctx, `
			UPDATE payments SET status = $1, gateway_data = $2, updated_at = NOW()
			WHERE transaction_id = $3`, status, gatewayData, transactionID)
	} else {
		tag, err = t.tx.Exec(ctx, `
			UPDATE payments SET status = $1, updated_at = NOW()
			WHERE transaction_id = $2`, status, transactionID)
	}
	if err != nil {
		return storageErr(fmt.Errorf("set payment status: %w", err))
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Holder(ctx context.Context, id uuid.UUID) (domain.Holder, error) {
	return holderByID(ctx, s.db, id)
}

func (s *PostgresStore) HolderByPhone(ctx context.Context, phone string) (domain.Holder, error) {
	return holderByPhone(ctx, s.db, phone)
}

func (s *PostgresStore) CreateHolder(ctx context.Context, holder domain.Holder) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO holders (id, name, phone, role, approved, commission_rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		holder.ID, holder.Name, holder.Phone, holder.Role, holder.Approved, holder.CommissionRate)
	if err != nil {
		return storageErr(fmt.Errorf("create holder: %w", err))
	}
	return nil
}

func (s *PostgresStore) SetAgentApproval(ctx context.Context, agent uuid.UUID, approved bool) (domain.Holder, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE holders SET approved = $1
		WHERE id = $2 AND role = $3
		RETURNING `+holderColumns, approved, agent, domain.RoleAgent)
	return scanHolder(row)
}

func scanWallet(row pgx.Row) (domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.Holder, &w.Balance, &w.Blocked, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, storageErr(fmt.Errorf("scan wallet: %w", err))
	}
	return w, nil
}

func (s *PostgresStore) Wallet(ctx context.Context, holder uuid.UUID) (domain.Wallet, error) {
	row := s.db.QueryRow(ctx, `
		SELECT holder_id, balance, blocked, created_at, updated_at
		FROM wallets WHERE holder_id = $1`, holder)
	return scanWallet(row)
}

func (s *PostgresStore) CreateWallet(ctx context.Context, holder uuid.UUID) (domain.Wallet, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO wallets (holder_id, balance, blocked, created_at, updated_at)
		VALUES ($1, 0, FALSE, NOW(), NOW())
		RETURNING holder_id, balance, blocked, created_at, updated_at`, holder)
	return scanWallet(row)
}

func (s *PostgresStore) SetWalletBlocked(ctx context.Context, holder uuid.UUID, blocked bool) (domain.Wallet, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE wallets SET blocked = $1, updated_at = NOW()
		WHERE holder_id = $2
		RETURNING holder_id, balance, blocked, created_at, updated_at`, blocked, holder)
	return scanWallet(row)
}

func (s *PostgresStore) Wallets(ctx context.Context, page, limit int) ([]domain.Wallet, int64, error) {
	offset, limit := pageOffset(page, limit)

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&total); err != nil {
		return nil, 0, storageErr(fmt.Errorf("count wallets: %w", err))
	}

	rows, err := s.db.Query(ctx, `
		SELECT holder_id, balance, blocked, created_at, updated_at
		FROM wallets
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, storageErr(fmt.Errorf("list wallets: %w", err))
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.Holder, &w.Balance, &w.Blocked, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, 0, storageErr(fmt.Errorf("scan wallet row: %w", err))
		}
		wallets = append(wallets, w)
	}
	return wallets, total, rows.Err()
}

const entryColumns = `id, account_id, from_id, to_id, amount, fee, commission, type, status, balance_before, balance_after, initiated_by, description, created_at`

func (s *PostgresStore) queryEntries(ctx context.Context, where string, countWhere string, args []any, offset, limit int) ([]domain.Entry, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM entries WHERE `+countWhere, args...).Scan(&total); err != nil {
		return nil, 0, storageErr(fmt.Errorf("count entries: %w", err))
	}

	query := fmt.Sprintf(`SELECT %s FROM entries WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		entryColumns, where, limit, offset)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, storageErr(fmt.Errorf("list entries: %w", err))
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.Account, &e.From, &e.To, &e.Amount, &e.Fee, &e.Commission,
			&e.Type, &e.Status, &e.BalanceBefore, &e.BalanceAfter, &e.InitiatedBy, &e.Description, &e.CreatedAt); err != nil {
			return nil, 0, storageErr(fmt.Errorf("scan entry: %w", err))
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *PostgresStore) EntriesByAccount(ctx context.Context, account uuid.UUID, page, limit int) ([]domain.Entry, int64, error) {
	offset, limit := pageOffset(page, limit)
	return s.queryEntries(ctx, `account_id = $1`, `account_id = $1`, []any{account}, offset, limit)
}

func (s *PostgresStore) EntriesByParty(ctx context.Context, holder uuid.UUID, page, limit int) ([]domain.Entry, int64, error) {
	offset, limit := pageOffset(page, limit)
	return s.queryEntries(ctx, `account_id = $1 AND type <> $2`, `account_id = $1 AND type <> $2`,
		[]any{holder, domain.EntryCommission}, offset, limit)
}

func (s *PostgresStore) CommissionEntries(ctx context.Context, agent uuid.UUID, page, limit int) ([]domain.Entry, int64, error) {
	offset, limit := pageOffset(page, limit)
	return s.queryEntries(ctx, `type = $1 AND to_id = $2`, `type = $1 AND to_id = $2`,
		[]any{domain.EntryCommission, agent}, offset, limit)
}

func (s *PostgresStore) AllEntries(ctx context.Context, page, limit int) ([]domain.Entry, int64, error) {
	offset, limit := pageOffset(page, limit)
	return s.queryEntries(ctx, `TRUE`, `TRUE`, nil, offset, limit)
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM holders WHERE role = $1),
			(SELECT COUNT(*) FROM holders WHERE role = $2),
			(SELECT COUNT(*) FROM entries),
			(SELECT COALESCE(SUM(balance), 0) FROM wallets WHERE holder_id <> $3)`,
		domain.RoleUser, domain.RoleAgent, domain.SystemHolder())
	if err := row.Scan(&st.TotalUsers, &st.TotalAgents, &st.TotalEntries, &st.TotalBalance); err != nil {
		return Stats{}, storageErr(fmt.Errorf("dashboard stats: %w", err))
	}
	return st, nil
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.TransactionID, &p.User, &p.Amount, &p.Status, &p.GatewayData, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Payment{}, domain.ErrNotFound
		}
		return domain.Payment{}, storageErr(fmt.Errorf("scan payment: %w", err))
	}
	return p, nil
}

func (s *PostgresStore) Payment(ctx context.Context, transactionID string) (domain.Payment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT transaction_id, user_id, amount, status, gateway_data, created_at, updated_at
		FROM payments WHERE transaction_id = $1`, transactionID)
	return scanPayment(row)
}

func (s *PostgresStore) PaymentsByUser(ctx context.Context, user uuid.UUID, page, limit int) ([]domain.Payment, int64, error) {
	offset, limit := pageOffset(page, limit)

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE user_id = $1`, user).Scan(&total); err != nil {
		return nil, 0, storageErr(fmt.Errorf("count payments: %w", err))
	}

	rows, err := s.db.Query(ctx, `
		SELECT transaction_id, user_id, amount, status, gateway_data, created_at, updated_at
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, user, limit, offset)
	if err != nil {
		return nil, 0, storageErr(fmt.Errorf("list payments: %w", err))
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.TransactionID, &p.User, &p.Amount, &p.Status, &p.GatewayData, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, storageErr(fmt.Errorf("scan payment row: %w", err))
		}
		payments = append(payments, p)
	}
	return payments, total, rows.Err()
}

func (s *PostgresStore) LedgerDrift(ctx context.Context) ([]Drift, error) {
	rows, err := s.db.Query(ctx, `
		SELECT w.holder_id, w.balance,
		       COALESCE(SUM(e.balance_after - e.balance_before), 0) AS replayed
		FROM wallets w
		LEFT JOIN entries e ON e.account_id = w.holder_id
		WHERE w.holder_id <> $1
		GROUP BY w.holder_id, w.balance
		HAVING w.balance <> COALESCE(SUM(e.balance_after - e.balance_before), 0)`,
		domain.SystemHolder())
	if err != nil {
		return nil, storageErr(fmt.Errorf("ledger drift query: %w", err))
	}
	defer rows.Close()

	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.Holder, &d.Balance, &d.Replayed); err != nil {
			return nil, storageErr(fmt.Errorf("scan drift row: %w", err))
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// storageErr marks transient driver failures retryable. Domain sentinels pass
// through untouched.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %s", domain.ErrStorageUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions, class 57: operator intervention
		// (shutdown), 40001/40P01: serialization/deadlock. All retryable.
		switch {
		case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57"):
			return fmt.Errorf("%w: %s", domain.ErrStorageUnavailable, err)
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return fmt.Errorf("%w: %s", domain.ErrStorageUnavailable, err)
		}
	}
	return err
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*pgTx)(nil)
)
