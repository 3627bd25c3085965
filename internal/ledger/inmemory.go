package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/madina-market/madina_pay/internal/notification"
	"github.com/madina-market/madina_pay/internal/outbox"
)

type memWallet struct {
	balances  map[string]int64
	isFrozen  bool
	createdAt time.Time
}

type inMemoryLedger struct {
	mu           sync.RWMutex
	wallets      map[string]*memWallet
	transactions []Transaction
	escrows      map[string]Escrow
	orderIndex   map[string]string
	events       []outbox.Event
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		wallets:    make(map[string]*memWallet),
		escrows:    make(map[string]Escrow),
		orderIndex: make(map[string]string),
	}
}

func (l *inMemoryLedger) walletFor(owner string) *memWallet {
	w, ok := l.wallets[owner]
	if !ok {
		w = &memWallet{balances: make(map[string]int64), createdAt: time.Now().UTC()}
		l.wallets[owner] = w
	}
	return w
}

func (l *inMemoryLedger) GetOrCreateWallet(_ context.Context, owner string) (Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.walletFor(owner)
	balances := make(map[string]int64, len(w.balances))
	for currency, amount := range w.balances {
		balances[currency] = amount
	}
	return Wallet{Owner: owner, Balances: balances, IsFrozen: w.isFrozen, CreatedAt: w.createdAt}, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, p TransferPosting) (TransferOutcome, error) {
	if p.Amount <= 0 {
		return TransferOutcome{}, fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sender := l.walletFor(p.Sender)
	recipient := l.walletFor(p.Recipient)
	fees := l.walletFor(FeeAccount)

	if sender.isFrozen || recipient.isFrozen {
		return TransferOutcome{}, ErrFrozenWallet
	}

	total := p.Amount + p.Fee
	if sender.balances[p.Currency] < total {
		return TransferOutcome{}, ErrInsufficientFunds
	}
	for _, tx := range l.transactions {
		if tx.Owner == p.Sender && tx.Reference == p.Reference {
			return TransferOutcome{}, ErrDuplicateReference
		}
	}

	sender.balances[p.Currency] -= total
	recipient.balances[p.Currency] += p.Amount
	fees.balances[p.Currency] += p.Fee

	now := time.Now().UTC()
	l.transactions = append(l.transactions,
		Transaction{ID: uuid.NewString(), Owner: p.Sender, Kind: KindTransfer, Amount: -total, Currency: p.Currency, Status: StatusCompleted, Description: p.Description, Reference: p.Reference, Counterparty: p.Recipient, CreatedAt: now},
		Transaction{ID: uuid.NewString(), Owner: p.Recipient, Kind: KindTransfer, Amount: p.Amount, Currency: p.Currency, Status: StatusCompleted, Description: p.Description, Reference: p.Reference, Counterparty: p.Sender, CreatedAt: now},
		Transaction{ID: uuid.NewString(), Owner: FeeAccount, Kind: KindTransfer, Amount: p.Fee, Currency: p.Currency, Status: StatusCompleted, Description: "transfer fee", Reference: p.Reference, Counterparty: p.Sender, CreatedAt: now},
	)
	l.events = append(l.events,
		outbox.Event{ID: uuid.NewString(), Kind: notification.KindTransferSent, Recipient: p.Sender, Body: fmt.Sprintf("You sent %d %s (ref %s)", p.Amount, p.Currency, p.Reference), CreatedAt: now},
		outbox.Event{ID: uuid.NewString(), Kind: notification.KindTransferReceived, Recipient: p.Recipient, Body: fmt.Sprintf("You received %d %s (ref %s)", p.Amount, p.Currency, p.Reference), CreatedAt: now},
	)

	return TransferOutcome{
		SenderBalance:    sender.balances[p.Currency],
		RecipientBalance: recipient.balances[p.Currency],
	}, nil
}

func (l *inMemoryLedger) Deposit(_ context.Context, p FundingPosting) (FundingOutcome, error) {
	if p.Amount <= 0 {
		return FundingOutcome{}, fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.walletFor(p.Owner)
	if w.isFrozen {
		return FundingOutcome{}, ErrFrozenWallet
	}

	status := StatusPending
	kind := notification.KindDepositPending
	if p.Instant {
		status = StatusCompleted
		kind = notification.KindDepositCompleted
		w.balances[p.Currency] += p.Amount
	}

	now := time.Now().UTC()
	record := Transaction{
		ID: uuid.NewString(), Owner: p.Owner, Kind: KindDeposit, Amount: p.Amount,
		Currency: p.Currency, Status: status, Description: p.Description,
		Reference: p.Reference, CreatedAt: now,
	}
	l.transactions = append(l.transactions, record)
	l.events = append(l.events, outbox.Event{ID: uuid.NewString(), Kind: kind, Recipient: p.Owner, Body: fmt.Sprintf("Deposit of %d %s is %s (ref %s)", p.Amount, p.Currency, status, p.Reference), CreatedAt: now})

	return FundingOutcome{TransactionID: record.ID, Status: status, Balance: w.balances[p.Currency]}, nil
}

func (l *inMemoryLedger) WithdrawRequest(_ context.Context, p FundingPosting) (FundingOutcome, error) {
	if p.Amount <= 0 {
		return FundingOutcome{}, fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.walletFor(p.Owner)
	if w.isFrozen {
		return FundingOutcome{}, ErrFrozenWallet
	}
	if w.balances[p.Currency] < p.Amount {
		return FundingOutcome{}, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	record := Transaction{
		ID: uuid.NewString(), Owner: p.Owner, Kind: KindWithdrawal, Amount: -p.Amount,
		Currency: p.Currency, Status: StatusPending, Description: p.Description,
		Reference: p.Reference, CreatedAt: now,
	}
	l.transactions = append(l.transactions, record)
	l.events = append(l.events, outbox.Event{ID: uuid.NewString(), Kind: notification.KindWithdrawRequested, Recipient: p.Owner, Body: fmt.Sprintf("Withdrawal of %d %s is pending approval (ref %s)", p.Amount, p.Currency, p.Reference), CreatedAt: now})

	return FundingOutcome{TransactionID: record.ID, Status: StatusPending, Balance: w.balances[p.Currency]}, nil
}

func (l *inMemoryLedger) Transactions(_ context.Context, owner string, limit int) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Transaction
	for i := len(l.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if l.transactions[i].Owner == owner {
			out = append(out, l.transactions[i])
		}
	}
	return out, nil
}

func (l *inMemoryLedger) CreateEscrow(_ context.Context, e Escrow, ev *outbox.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.orderIndex[e.OrderID]; exists {
		return ErrDuplicateOrder
	}
	l.escrows[e.ID] = e
	l.orderIndex[e.OrderID] = e.ID
	if ev != nil {
		stamped := *ev
		stamped.CreatedAt = time.Now().UTC()
		l.events = append(l.events, stamped)
	}
	return nil
}

func (l *inMemoryLedger) EscrowByID(_ context.Context, id string) (Escrow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.escrows[id]
	if !ok {
		return Escrow{}, ErrEscrowNotFound
	}
	return e, nil
}

func (l *inMemoryLedger) EscrowByOrderID(_ context.Context, orderID string) (Escrow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.orderIndex[orderID]
	if !ok {
		return Escrow{}, ErrEscrowNotFound
	}
	return l.escrows[id], nil
}

func (l *inMemoryLedger) EscrowsForUser(_ context.Context, userID string, limit int) ([]Escrow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Escrow
	for _, e := range l.escrows {
		if e.CustomerID == userID || e.SellerID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HeldSince.After(out[j].HeldSince) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *inMemoryLedger) TransitionEscrow(_ context.Context, t EscrowTransition) (Escrow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.escrows[t.EscrowID]
	if !ok {
		return Escrow{}, ErrEscrowNotFound
	}
	if e.Status != t.From {
		return Escrow{}, ErrInvalidTransition
	}

	for _, leg := range t.Credits {
		if w := l.walletFor(leg.Owner); w.isFrozen {
			return Escrow{}, ErrFrozenWallet
		}
	}

	e.Status = t.To
	if t.Resolution != "" {
		e.Resolution = t.Resolution
	}
	l.escrows[t.EscrowID] = e

	now := time.Now().UTC()
	for _, leg := range t.Credits {
		w := l.walletFor(leg.Owner)
		w.balances[e.Currency] += leg.Amount
		l.transactions = append(l.transactions, Transaction{
			ID: uuid.NewString(), Owner: leg.Owner, Kind: KindPayment, Amount: leg.Amount,
			Currency: e.Currency, Status: StatusCompleted, Description: leg.Description,
			Reference: t.Reference, Counterparty: leg.Counterparty, CreatedAt: now,
		})
	}
	if t.Event != nil {
		stamped := *t.Event
		stamped.CreatedAt = now
		l.events = append(l.events, stamped)
	}
	return e, nil
}

func (l *inMemoryLedger) DueEscrows(_ context.Context, now time.Time, limit int) ([]Escrow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Escrow
	for _, e := range l.escrows {
		if e.Status == EscrowHeld && !e.AutoReleaseAt.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AutoReleaseAt.Before(out[j].AutoReleaseAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PendingEvents returns undispatched outbox entries, oldest first.
func (l *inMemoryLedger) PendingEvents(_ context.Context, limit int) ([]outbox.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []outbox.Event
	for _, ev := range l.events {
		if ev.DispatchedAt == nil {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// MarkDispatched stamps the given outbox entries as delivered.
func (l *inMemoryLedger) MarkDispatched(_ context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range l.events {
		if _, ok := set[l.events[i].ID]; ok {
			l.events[i].DispatchedAt = &now
		}
	}
	return nil
}
