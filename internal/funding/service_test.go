package funding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/madina-market/madina_pay/internal/ledger"
)

func balance(t *testing.T, l ledger.Ledger, owner, currency string) int64 {
	t.Helper()
	w, err := l.GetOrCreateWallet(context.Background(), owner)
	if err != nil {
		t.Fatalf("get wallet %s: %v", owner, err)
	}
	return w.Balances[currency]
}

func TestWithdrawRecordsPendingWithoutDebit(t *testing.T) {
	l := ledger.NewInMemory()
	svc := NewService(l)
	ledger.SeedBalance(l, "user-1", "GNF", 5000)

	result, err := svc.Withdraw(context.Background(), WithdrawInput{
		UserID:      "user-1",
		Amount:      2000,
		Currency:    "GNF",
		BankDetails: "BICIGUI 0123456789",
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if result.Status != ledger.StatusPending {
		t.Fatalf("expected pending status got %q", result.Status)
	}
	if !strings.HasPrefix(result.Reference, "WDR-") {
		t.Fatalf("unexpected reference %q", result.Reference)
	}
	// Approval settles the debit out of band.
	if got := balance(t, l, "user-1", "GNF"); got != 5000 {
		t.Fatalf("balance = %d, want 5000 (no debit at request time)", got)
	}

	txs, err := l.Transactions(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction got %d", len(txs))
	}
	if txs[0].Kind != ledger.KindWithdrawal || txs[0].Status != ledger.StatusPending {
		t.Fatalf("unexpected transaction %+v", txs[0])
	}
}

func TestWithdrawRequiresCoverage(t *testing.T) {
	l := ledger.NewInMemory()
	svc := NewService(l)
	ledger.SeedBalance(l, "user-1", "GNF", 100)

	_, err := svc.Withdraw(context.Background(), WithdrawInput{
		UserID:      "user-1",
		Amount:      500,
		Currency:    "GNF",
		BankDetails: "BICIGUI 0123456789",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds got %v", err)
	}
}

func TestWithdrawValidatesInput(t *testing.T) {
	svc := NewService(ledger.NewInMemory())

	cases := []WithdrawInput{
		{UserID: "u", Amount: 0, Currency: "GNF", BankDetails: "x"},
		{UserID: "u", Amount: 100, BankDetails: "x"},
		{UserID: "u", Amount: 100, Currency: "GNF"},
	}
	for _, input := range cases {
		if _, err := svc.Withdraw(context.Background(), input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v got %v", input, err)
		}
	}
}

func TestDepositWalletMethodCreditsImmediately(t *testing.T) {
	l := ledger.NewInMemory()
	svc := NewService(l)

	result, err := svc.Deposit(context.Background(), DepositInput{
		UserID:        "user-1",
		Amount:        1500,
		Currency:      "GNF",
		PaymentMethod: PaymentMethodWallet,
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if result.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed status got %q", result.Status)
	}
	if result.NewBalance == nil || *result.NewBalance != 1500 {
		t.Fatalf("expected new balance 1500 got %v", result.NewBalance)
	}
	if got := balance(t, l, "user-1", "GNF"); got != 1500 {
		t.Fatalf("balance = %d, want 1500", got)
	}
}

func TestDepositExternalMethodStaysPending(t *testing.T) {
	l := ledger.NewInMemory()
	svc := NewService(l)

	result, err := svc.Deposit(context.Background(), DepositInput{
		UserID:        "user-1",
		Amount:        1500,
		Currency:      "GNF",
		PaymentMethod: "orange_money",
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if result.Status != ledger.StatusPending {
		t.Fatalf("expected pending status got %q", result.Status)
	}
	if result.NewBalance != nil {
		t.Fatalf("expected no balance in pending result, got %d", *result.NewBalance)
	}
	if got := balance(t, l, "user-1", "GNF"); got != 0 {
		t.Fatalf("balance = %d, want 0 until confirmation", got)
	}
}

func TestDepositFrozenWallet(t *testing.T) {
	l := ledger.NewInMemory()
	svc := NewService(l)
	ledger.SetFrozen(l, "user-1", true)

	_, err := svc.Deposit(context.Background(), DepositInput{
		UserID:        "user-1",
		Amount:        100,
		Currency:      "GNF",
		PaymentMethod: PaymentMethodWallet,
	})
	if !errors.Is(err, ledger.ErrFrozenWallet) {
		t.Fatalf("expected ErrFrozenWallet got %v", err)
	}
}
