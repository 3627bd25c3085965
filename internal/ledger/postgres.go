package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/madina-market/madina_pay/internal/notification"
	"github.com/madina-market/madina_pay/internal/outbox"
)

const uniqueViolation = "23505"

// PostgresLedger persists financial state in PostgreSQL. Concurrent operations
// on the same wallet serialize on row locks taken with SELECT ... FOR UPDATE.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// GetOrCreateWallet returns the wallet for owner, creating an empty one on
// first access.
func (l *PostgresLedger) GetOrCreateWallet(ctx context.Context, owner string) (Wallet, error) {
	if _, err := l.db.Exec(ctx, `INSERT INTO wallets (owner) VALUES ($1)
        ON CONFLICT (owner) DO NOTHING`, owner); err != nil {
		return Wallet{}, err
	}

	w := Wallet{Owner: owner, Balances: map[string]int64{}}
	row := l.db.QueryRow(ctx, `SELECT is_frozen, created_at FROM wallets WHERE owner = $1`, owner)
	var createdAt time.Time
	if err := row.Scan(&w.IsFrozen, &createdAt); err != nil {
		return Wallet{}, err
	}
	w.CreatedAt = createdAt.UTC()

	rows, err := l.db.Query(ctx, `SELECT currency, amount FROM wallet_balances WHERE owner = $1`, owner)
	if err != nil {
		return Wallet{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var currency string
		var amount int64
		if err := rows.Scan(&currency, &amount); err != nil {
			return Wallet{}, err
		}
		w.Balances[currency] = amount
	}
	return w, rows.Err()
}

// Transfer atomically debits the sender by amount+fee, credits the recipient
// by amount and credits the platform fee account by fee, writing a transaction
// row per affected wallet and the notification outbox entries.
func (l *PostgresLedger) Transfer(ctx context.Context, p TransferPosting) (TransferOutcome, error) {
	if p.Amount <= 0 {
		return TransferOutcome{}, fmt.Errorf("amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferOutcome{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Lock owners in a stable order so concurrent transfers cannot deadlock.
	owners := []string{p.Sender, p.Recipient, FeeAccount}
	sort.Strings(owners)
	frozen := map[string]bool{}
	for _, owner := range owners {
		isFrozen, err := lockWallet(ctx, tx, owner)
		if err != nil {
			return TransferOutcome{}, err
		}
		frozen[owner] = isFrozen
	}
	if frozen[p.Sender] || frozen[p.Recipient] {
		return TransferOutcome{}, ErrFrozenWallet
	}

	total := p.Amount + p.Fee
	senderBalance, err := balanceFor(ctx, tx, p.Sender, p.Currency)
	if err != nil {
		return TransferOutcome{}, err
	}
	if senderBalance < total {
		return TransferOutcome{}, ErrInsufficientFunds
	}

	newSenderBalance, err := applyDelta(ctx, tx, p.Sender, p.Currency, -total)
	if err != nil {
		return TransferOutcome{}, err
	}
	newRecipientBalance, err := applyDelta(ctx, tx, p.Recipient, p.Currency, p.Amount)
	if err != nil {
		return TransferOutcome{}, err
	}
	if _, err := applyDelta(ctx, tx, FeeAccount, p.Currency, p.Fee); err != nil {
		return TransferOutcome{}, err
	}

	now := time.Now().UTC()
	legs := []Transaction{
		{ID: uuid.NewString(), Owner: p.Sender, Kind: KindTransfer, Amount: -total, Currency: p.Currency, Status: StatusCompleted, Description: p.Description, Reference: p.Reference, Counterparty: p.Recipient, CreatedAt: now},
		{ID: uuid.NewString(), Owner: p.Recipient, Kind: KindTransfer, Amount: p.Amount, Currency: p.Currency, Status: StatusCompleted, Description: p.Description, Reference: p.Reference, Counterparty: p.Sender, CreatedAt: now},
		{ID: uuid.NewString(), Owner: FeeAccount, Kind: KindTransfer, Amount: p.Fee, Currency: p.Currency, Status: StatusCompleted, Description: "transfer fee", Reference: p.Reference, Counterparty: p.Sender, CreatedAt: now},
	}
	for _, leg := range legs {
		if err := insertTransaction(ctx, tx, leg); err != nil {
			return TransferOutcome{}, err
		}
	}

	events := []outbox.Event{
		{ID: uuid.NewString(), Kind: notification.KindTransferSent, Recipient: p.Sender, Body: fmt.Sprintf("You sent %d %s (ref %s)", p.Amount, p.Currency, p.Reference)},
		{ID: uuid.NewString(), Kind: notification.KindTransferReceived, Recipient: p.Recipient, Body: fmt.Sprintf("You received %d %s (ref %s)", p.Amount, p.Currency, p.Reference)},
	}
	for _, ev := range events {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return TransferOutcome{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferOutcome{}, err
	}

	return TransferOutcome{SenderBalance: newSenderBalance, RecipientBalance: newRecipientBalance}, nil
}

// Deposit credits the wallet immediately for instant postings, otherwise only
// records a pending transaction awaiting external confirmation.
func (l *PostgresLedger) Deposit(ctx context.Context, p FundingPosting) (FundingOutcome, error) {
	if p.Amount <= 0 {
		return FundingOutcome{}, fmt.Errorf("amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return FundingOutcome{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	isFrozen, err := lockWallet(ctx, tx, p.Owner)
	if err != nil {
		return FundingOutcome{}, err
	}
	if isFrozen {
		return FundingOutcome{}, ErrFrozenWallet
	}

	status := StatusPending
	kind := notification.KindDepositPending
	balance, err := balanceFor(ctx, tx, p.Owner, p.Currency)
	if err != nil {
		return FundingOutcome{}, err
	}
	if p.Instant {
		status = StatusCompleted
		kind = notification.KindDepositCompleted
		balance, err = applyDelta(ctx, tx, p.Owner, p.Currency, p.Amount)
		if err != nil {
			return FundingOutcome{}, err
		}
	}

	record := Transaction{
		ID:          uuid.NewString(),
		Owner:       p.Owner,
		Kind:        KindDeposit,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      status,
		Description: p.Description,
		Reference:   p.Reference,
		CreatedAt:   time.Now().UTC(),
	}
	if err := insertTransaction(ctx, tx, record); err != nil {
		return FundingOutcome{}, err
	}

	ev := outbox.Event{ID: uuid.NewString(), Kind: kind, Recipient: p.Owner, Body: fmt.Sprintf("Deposit of %d %s is %s (ref %s)", p.Amount, p.Currency, status, p.Reference)}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return FundingOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return FundingOutcome{}, err
	}
	return FundingOutcome{TransactionID: record.ID, Status: status, Balance: balance}, nil
}

// WithdrawRequest validates the balance covers the amount and records a
// pending withdrawal for administrative approval. The balance itself is not
// debited until the request is approved out of band.
func (l *PostgresLedger) WithdrawRequest(ctx context.Context, p FundingPosting) (FundingOutcome, error) {
	if p.Amount <= 0 {
		return FundingOutcome{}, fmt.Errorf("amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return FundingOutcome{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	isFrozen, err := lockWallet(ctx, tx, p.Owner)
	if err != nil {
		return FundingOutcome{}, err
	}
	if isFrozen {
		return FundingOutcome{}, ErrFrozenWallet
	}

	balance, err := balanceFor(ctx, tx, p.Owner, p.Currency)
	if err != nil {
		return FundingOutcome{}, err
	}
	if balance < p.Amount {
		return FundingOutcome{}, ErrInsufficientFunds
	}

	record := Transaction{
		ID:          uuid.NewString(),
		Owner:       p.Owner,
		Kind:        KindWithdrawal,
		Amount:      -p.Amount,
		Currency:    p.Currency,
		Status:      StatusPending,
		Description: p.Description,
		Reference:   p.Reference,
		CreatedAt:   time.Now().UTC(),
	}
	if err := insertTransaction(ctx, tx, record); err != nil {
		return FundingOutcome{}, err
	}

	ev := outbox.Event{ID: uuid.NewString(), Kind: notification.KindWithdrawRequested, Recipient: p.Owner, Body: fmt.Sprintf("Withdrawal of %d %s is pending approval (ref %s)", p.Amount, p.Currency, p.Reference)}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return FundingOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return FundingOutcome{}, err
	}
	return FundingOutcome{TransactionID: record.ID, Status: StatusPending, Balance: balance}, nil
}

// Transactions returns the newest transactions for the owner.
func (l *PostgresLedger) Transactions(ctx context.Context, owner string, limit int) ([]Transaction, error) {
	rows, err := l.db.Query(ctx, `SELECT id, owner, kind, amount, currency, status, description, reference,
        COALESCE(counterparty, ''), created_at
        FROM transactions WHERE owner = $1 ORDER BY created_at DESC, id LIMIT $2`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var id uuid.UUID
		var createdAt time.Time
		if err := rows.Scan(&id, &t.Owner, &t.Kind, &t.Amount, &t.Currency, &t.Status, &t.Description, &t.Reference, &t.Counterparty, &createdAt); err != nil {
			return nil, err
		}
		t.ID = id.String()
		t.CreatedAt = createdAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateEscrow persists a new held escrow together with its outbox entry.
func (l *PostgresLedger) CreateEscrow(ctx context.Context, e Escrow, ev *outbox.Event) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	_, err = tx.Exec(ctx, `INSERT INTO escrows (id, order_id, customer_id, seller_id, total_amount,
        seller_amount, commission_amount, commission_rate, currency, status, held_since,
        auto_release_at, auto_release_days, resolution)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.OrderID, e.CustomerID, e.SellerID, e.TotalAmount,
		e.SellerAmount, e.CommissionAmount, e.CommissionRate.String(), e.Currency, e.Status,
		e.HeldSince.UTC(), e.AutoReleaseAt.UTC(), e.AutoReleaseDays, e.Resolution)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateOrder
		}
		return err
	}

	if ev != nil {
		if err := insertEvent(ctx, tx, *ev); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const escrowColumns = `id, order_id, customer_id, seller_id, total_amount, seller_amount,
    commission_amount, commission_rate::text, currency, status, held_since, auto_release_at,
    auto_release_days, resolution`

// EscrowByID fetches a single escrow by identifier.
func (l *PostgresLedger) EscrowByID(ctx context.Context, id string) (Escrow, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Escrow{}, ErrEscrowNotFound
	}
	row := l.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id)
	e, err := scanEscrow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Escrow{}, ErrEscrowNotFound
	}
	return e, err
}

// EscrowByOrderID fetches the escrow tied to a marketplace order.
func (l *PostgresLedger) EscrowByOrderID(ctx context.Context, orderID string) (Escrow, error) {
	row := l.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE order_id = $1`, orderID)
	e, err := scanEscrow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Escrow{}, ErrEscrowNotFound
	}
	return e, err
}

// EscrowsForUser returns the newest escrows where the user is either party.
func (l *PostgresLedger) EscrowsForUser(ctx context.Context, userID string, limit int) ([]Escrow, error) {
	rows, err := l.db.Query(ctx, `SELECT `+escrowColumns+` FROM escrows
        WHERE customer_id = $1 OR seller_id = $1 ORDER BY held_since DESC, id LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TransitionEscrow flips the escrow status guarded by the expected current
// state and applies the associated wallet credits in the same transaction.
func (l *PostgresLedger) TransitionEscrow(ctx context.Context, t EscrowTransition) (Escrow, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Escrow{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `UPDATE escrows
        SET status = $1, resolution = CASE WHEN $2 <> '' THEN $2 ELSE resolution END
        WHERE id = $3 AND status = $4
        RETURNING `+escrowColumns, t.To, t.Resolution, t.EscrowID, t.From)
	escrow, err := scanEscrow(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, err
		}
		// Distinguish a missing escrow from one that already moved.
		var status string
		if lookupErr := tx.QueryRow(ctx, `SELECT status FROM escrows WHERE id = $1`, t.EscrowID).Scan(&status); lookupErr != nil {
			if errors.Is(lookupErr, pgx.ErrNoRows) {
				return Escrow{}, ErrEscrowNotFound
			}
			return Escrow{}, lookupErr
		}
		return Escrow{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	for _, leg := range t.Credits {
		isFrozen, err := lockWallet(ctx, tx, leg.Owner)
		if err != nil {
			return Escrow{}, err
		}
		if isFrozen {
			return Escrow{}, ErrFrozenWallet
		}
		if _, err := applyDelta(ctx, tx, leg.Owner, escrow.Currency, leg.Amount); err != nil {
			return Escrow{}, err
		}
		record := Transaction{
			ID:           uuid.NewString(),
			Owner:        leg.Owner,
			Kind:         KindPayment,
			Amount:       leg.Amount,
			Currency:     escrow.Currency,
			Status:       StatusCompleted,
			Description:  leg.Description,
			Reference:    t.Reference,
			Counterparty: leg.Counterparty,
			CreatedAt:    now,
		}
		if err := insertTransaction(ctx, tx, record); err != nil {
			return Escrow{}, err
		}
	}

	if t.Event != nil {
		if err := insertEvent(ctx, tx, *t.Event); err != nil {
			return Escrow{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, err
	}
	return escrow, nil
}

// DueEscrows lists held escrows whose auto-release timestamp has passed.
func (l *PostgresLedger) DueEscrows(ctx context.Context, now time.Time, limit int) ([]Escrow, error) {
	rows, err := l.db.Query(ctx, `SELECT `+escrowColumns+` FROM escrows
        WHERE status = $1 AND auto_release_at <= $2 ORDER BY auto_release_at LIMIT $3`,
		EscrowHeld, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PendingEvents returns undispatched outbox entries, oldest first.
func (l *PostgresLedger) PendingEvents(ctx context.Context, limit int) ([]outbox.Event, error) {
	rows, err := l.db.Query(ctx, `SELECT id, kind, recipient, body, created_at FROM outbox_events
        WHERE dispatched_at IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.Event
	for rows.Next() {
		var ev outbox.Event
		var id uuid.UUID
		if err := rows.Scan(&id, &ev.Kind, &ev.Recipient, &ev.Body, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.ID = id.String()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkDispatched stamps the given outbox entries as delivered.
func (l *PostgresLedger) MarkDispatched(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := l.db.Exec(ctx, `UPDATE outbox_events SET dispatched_at = now()
        WHERE id = ANY($1::uuid[])`, ids)
	return err
}

func lockWallet(ctx context.Context, tx pgx.Tx, owner string) (bool, error) {
	if _, err := tx.Exec(ctx, `INSERT INTO wallets (owner) VALUES ($1)
        ON CONFLICT (owner) DO NOTHING`, owner); err != nil {
		return false, err
	}
	var isFrozen bool
	if err := tx.QueryRow(ctx, `SELECT is_frozen FROM wallets WHERE owner = $1 FOR UPDATE`, owner).Scan(&isFrozen); err != nil {
		return false, err
	}
	return isFrozen, nil
}

func balanceFor(ctx context.Context, tx pgx.Tx, owner, currency string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT amount FROM wallet_balances WHERE owner = $1 AND currency = $2 FOR UPDATE`,
		owner, currency).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func applyDelta(ctx context.Context, tx pgx.Tx, owner, currency string, delta int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `INSERT INTO wallet_balances (owner, currency, amount) VALUES ($1, $2, $3)
        ON CONFLICT (owner, currency) DO UPDATE SET amount = wallet_balances.amount + EXCLUDED.amount
        RETURNING amount`, owner, currency, delta).Scan(&balance)
	if err != nil {
		return 0, err
	}
	if balance < 0 {
		return 0, ErrInsufficientFunds
	}
	return balance, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t Transaction) error {
	var counterparty any
	if t.Counterparty != "" {
		counterparty = t.Counterparty
	}
	_, err := tx.Exec(ctx, `INSERT INTO transactions (id, owner, kind, amount, currency, status,
        description, reference, counterparty, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Owner, t.Kind, t.Amount, t.Currency, t.Status, t.Description, t.Reference, counterparty, t.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateReference
	}
	return err
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev outbox.Event) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox_events (id, kind, recipient, body) VALUES ($1, $2, $3, $4)`,
		ev.ID, ev.Kind, ev.Recipient, ev.Body)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscrow(row rowScanner) (Escrow, error) {
	var e Escrow
	var id uuid.UUID
	var rate string
	var heldSince, autoReleaseAt time.Time
	if err := row.Scan(&id, &e.OrderID, &e.CustomerID, &e.SellerID, &e.TotalAmount, &e.SellerAmount,
		&e.CommissionAmount, &rate, &e.Currency, &e.Status, &heldSince, &autoReleaseAt,
		&e.AutoReleaseDays, &e.Resolution); err != nil {
		return Escrow{}, err
	}
	parsed, err := decimal.NewFromString(rate)
	if err != nil {
		return Escrow{}, fmt.Errorf("parse commission rate: %w", err)
	}
	e.ID = id.String()
	e.CommissionRate = parsed
	e.HeldSince = heldSince.UTC()
	e.AutoReleaseAt = autoReleaseAt.UTC()
	return e, nil
}
