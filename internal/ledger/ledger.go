package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/madina-market/madina_pay/internal/outbox"
)

var (
	// ErrInsufficientFunds occurs when a debit would push a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrFrozenWallet indicates one of the wallets involved is frozen and may
	// not participate in balance-affecting operations.
	ErrFrozenWallet = errors.New("wallet is frozen")

	// ErrInvalidTransition indicates the escrow is not in the expected state,
	// either because the transition edge does not exist or because another
	// operation already moved it.
	ErrInvalidTransition = errors.New("invalid escrow state transition")

	// ErrEscrowNotFound indicates no escrow matches the given identifier.
	ErrEscrowNotFound = errors.New("escrow not found")

	// ErrDuplicateOrder indicates an escrow already exists for the order.
	ErrDuplicateOrder = errors.New("escrow already exists for order")

	// ErrDuplicateReference indicates the owner already has a transaction with
	// the caller-supplied reference.
	ErrDuplicateReference = errors.New("duplicate transaction reference")
)

// Transaction kinds.
const (
	KindTransfer   = "transfer"
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
	KindPayment    = "payment"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Platform-owned wallet accounts. User wallets are keyed by the user UUID.
const (
	FeeAccount        = "platform:fees"
	CommissionAccount = "platform:commission"
)

// Escrow statuses. Released and refunded are terminal.
const (
	EscrowHeld     = "held"
	EscrowReleased = "released"
	EscrowRefunded = "refunded"
	EscrowDisputed = "disputed"
)

// Wallet holds per-currency balances for an owner. Balances are stored in the
// currency's smallest unit and are never negative.
type Wallet struct {
	Owner     string
	Balances  map[string]int64
	IsFrozen  bool
	CreatedAt time.Time
}

// Transaction is an append-only record of a balance-affecting event. Amount is
// signed: debits are negative, credits positive. Completed rows are immutable.
type Transaction struct {
	ID           string
	Owner        string
	Kind         string
	Amount       int64
	Currency     string
	Status       string
	Description  string
	Reference    string
	Counterparty string
	CreatedAt    time.Time
}

// Escrow holds marketplace-order funds pending release, refund or dispute
// resolution. SellerAmount + CommissionAmount always equals TotalAmount.
type Escrow struct {
	ID               string
	OrderID          string
	CustomerID       string
	SellerID         string
	TotalAmount      int64
	SellerAmount     int64
	CommissionAmount int64
	CommissionRate   decimal.Decimal
	Currency         string
	Status           string
	HeldSince        time.Time
	AutoReleaseAt    time.Time
	AutoReleaseDays  int
	Resolution       string
}

// TransferPosting describes an atomic peer-to-peer money movement: the sender
// is debited Amount+Fee, the recipient credited Amount and the platform fee
// account credited Fee, with a transaction row per affected wallet.
type TransferPosting struct {
	Sender      string
	Recipient   string
	Amount      int64
	Fee         int64
	Currency    string
	Reference   string
	Description string
}

// TransferOutcome reports post-commit balances for the transfer currency.
type TransferOutcome struct {
	SenderBalance    int64
	RecipientBalance int64
}

// FundingPosting describes a deposit or withdrawal request.
type FundingPosting struct {
	Owner       string
	Amount      int64
	Currency    string
	Reference   string
	Description string
	// Instant applies the balance change immediately and records the row as
	// completed. Otherwise only a pending row is written.
	Instant bool
}

// FundingOutcome reports the recorded transaction and resulting balance.
type FundingOutcome struct {
	TransactionID string
	Status        string
	Balance       int64
}

// CreditLeg is a wallet credit applied together with an escrow transition.
type CreditLeg struct {
	Owner        string
	Amount       int64
	Description  string
	Counterparty string
}

// EscrowTransition moves an escrow along one state-machine edge. The update is
// guarded by the expected current status; if the row already moved the whole
// operation fails with ErrInvalidTransition and no credit is applied.
type EscrowTransition struct {
	EscrowID   string
	From       string
	To         string
	Credits    []CreditLeg
	Reference  string
	Resolution string
	Event      *outbox.Event
}

// Ledger is the single source of truth for financial state: wallets, the
// transaction ledger, escrows and the notification outbox. Every mutating
// method is a single atomic unit; no partial application is observable.
type Ledger interface {
	GetOrCreateWallet(ctx context.Context, owner string) (Wallet, error)
	Transfer(ctx context.Context, p TransferPosting) (TransferOutcome, error)
	Deposit(ctx context.Context, p FundingPosting) (FundingOutcome, error)
	WithdrawRequest(ctx context.Context, p FundingPosting) (FundingOutcome, error)
	Transactions(ctx context.Context, owner string, limit int) ([]Transaction, error)

	CreateEscrow(ctx context.Context, e Escrow, ev *outbox.Event) error
	EscrowByID(ctx context.Context, id string) (Escrow, error)
	EscrowByOrderID(ctx context.Context, orderID string) (Escrow, error)
	EscrowsForUser(ctx context.Context, userID string, limit int) ([]Escrow, error)
	TransitionEscrow(ctx context.Context, t EscrowTransition) (Escrow, error)
	DueEscrows(ctx context.Context, now time.Time, limit int) ([]Escrow, error)
}
