package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/madina-market/madina_pay/internal/ledger"
)

const (
	customerID = "11111111-1111-1111-1111-111111111111"
	sellerID   = "22222222-2222-2222-2222-222222222222"
)

func newTestService(t *testing.T) (*Service, ledger.Ledger) {
	t.Helper()
	l := ledger.NewInMemory()
	return NewService(l, decimal.RequireFromString("0.10"), "GNF", 7), l
}

func balance(t *testing.T, l ledger.Ledger, owner, currency string) int64 {
	t.Helper()
	w, err := l.GetOrCreateWallet(context.Background(), owner)
	if err != nil {
		t.Fatalf("get wallet %s: %v", owner, err)
	}
	return w.Balances[currency]
}

func createHeld(t *testing.T, svc *Service, orderID string, total int64, rate string) ledger.Escrow {
	t.Helper()
	var ratePtr *decimal.Decimal
	if rate != "" {
		r := decimal.RequireFromString(rate)
		ratePtr = &r
	}
	e, err := svc.Create(context.Background(), CreateInput{
		OrderID:        orderID,
		CustomerID:     customerID,
		SellerID:       sellerID,
		TotalAmount:    total,
		CommissionRate: ratePtr,
	})
	if err != nil {
		t.Fatalf("create escrow: %v", err)
	}
	return e
}

func TestCreateSplitsCommission(t *testing.T) {
	svc, _ := newTestService(t)

	e := createHeld(t, svc, "order-1", 1000, "0.20")

	if e.SellerAmount != 800 || e.CommissionAmount != 200 {
		t.Fatalf("split = %d/%d, want 800/200", e.SellerAmount, e.CommissionAmount)
	}
	if e.Status != ledger.EscrowHeld {
		t.Fatalf("status = %q, want held", e.Status)
	}
	if e.Currency != "GNF" {
		t.Fatalf("currency = %q, want default GNF", e.Currency)
	}
	if want := e.HeldSince.AddDate(0, 0, 7); !e.AutoReleaseAt.Equal(want) {
		t.Fatalf("auto release at = %v, want %v", e.AutoReleaseAt, want)
	}
}

func TestCreateUsesDefaultRate(t *testing.T) {
	svc, _ := newTestService(t)

	e := createHeld(t, svc, "order-1", 1000, "")

	if e.SellerAmount != 900 || e.CommissionAmount != 100 {
		t.Fatalf("split = %d/%d, want 900/100 at default 10%%", e.SellerAmount, e.CommissionAmount)
	}
}

func TestCreateSplitIsExact(t *testing.T) {
	svc, _ := newTestService(t)

	rates := []string{"0", "0.01", "0.0333", "0.1", "0.5", "0.999", "1"}
	totals := []int64{1, 7, 999, 12345}

	for i, rate := range rates {
		for j, total := range totals {
			orderID := string(rune('a'+i)) + string(rune('a'+j))
			e := createHeld(t, svc, orderID, total, rate)
			if e.SellerAmount+e.CommissionAmount != total {
				t.Errorf("rate %s total %d: %d + %d != %d", rate, total, e.SellerAmount, e.CommissionAmount, total)
			}
			if e.SellerAmount < 0 || e.CommissionAmount < 0 {
				t.Errorf("rate %s total %d: negative share %d/%d", rate, total, e.SellerAmount, e.CommissionAmount)
			}
		}
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)

	badRate := decimal.RequireFromString("1.5")
	cases := []CreateInput{
		{OrderID: "", CustomerID: customerID, SellerID: sellerID, TotalAmount: 100},
		{OrderID: "o", CustomerID: customerID, SellerID: sellerID, TotalAmount: 0},
		{OrderID: "o", CustomerID: customerID, SellerID: sellerID, TotalAmount: -5},
		{OrderID: "o", CustomerID: customerID, SellerID: sellerID, TotalAmount: 100, CommissionRate: &badRate},
	}
	for _, input := range cases {
		if _, err := svc.Create(context.Background(), input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v got %v", input, err)
		}
	}
}

func TestCreateDuplicateOrder(t *testing.T) {
	svc, _ := newTestService(t)
	createHeld(t, svc, "order-1", 1000, "")

	_, err := svc.Create(context.Background(), CreateInput{
		OrderID:     "order-1",
		CustomerID:  customerID,
		SellerID:    sellerID,
		TotalAmount: 500,
	})
	if !errors.Is(err, ledger.ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder got %v", err)
	}
}

func TestConfirmDeliveryReleasesToSellerAndCommission(t *testing.T) {
	svc, l := newTestService(t)
	createHeld(t, svc, "order-1", 1000, "0.20")

	released, err := svc.ConfirmDelivery(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}

	if released.Status != ledger.EscrowReleased {
		t.Fatalf("status = %q, want released", released.Status)
	}
	if got := balance(t, l, sellerID, "GNF"); got != 800 {
		t.Fatalf("seller balance = %d, want 800", got)
	}
	if got := balance(t, l, ledger.CommissionAccount, "GNF"); got != 200 {
		t.Fatalf("commission balance = %d, want 200", got)
	}
	if got := balance(t, l, customerID, "GNF"); got != 0 {
		t.Fatalf("customer balance = %d, want 0", got)
	}
}

func TestConfirmDeliveryTwiceFails(t *testing.T) {
	svc, l := newTestService(t)
	createHeld(t, svc, "order-1", 1000, "0.20")

	if _, err := svc.ConfirmDelivery(context.Background(), "order-1"); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	_, err := svc.ConfirmDelivery(context.Background(), "order-1")
	if !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}
	// No double credit.
	if got := balance(t, l, sellerID, "GNF"); got != 800 {
		t.Fatalf("seller balance = %d, want 800", got)
	}
}

func TestConfirmDeliveryUnknownOrder(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ConfirmDelivery(context.Background(), "no-such-order")
	if !errors.Is(err, ledger.ErrEscrowNotFound) {
		t.Fatalf("expected ErrEscrowNotFound got %v", err)
	}
}

func TestOpenDisputeHoldsFunds(t *testing.T) {
	svc, l := newTestService(t)
	e := createHeld(t, svc, "order-1", 1000, "")

	disputed, err := svc.OpenDispute(context.Background(), e.ID, "item not received")
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}

	if disputed.Status != ledger.EscrowDisputed {
		t.Fatalf("status = %q, want disputed", disputed.Status)
	}
	if got := balance(t, l, sellerID, "GNF"); got != 0 {
		t.Fatalf("seller balance = %d, want 0 while disputed", got)
	}
	if got := balance(t, l, customerID, "GNF"); got != 0 {
		t.Fatalf("customer balance = %d, want 0 while disputed", got)
	}
}

func TestOpenDisputeTwiceFails(t *testing.T) {
	svc, _ := newTestService(t)
	e := createHeld(t, svc, "order-1", 1000, "")

	if _, err := svc.OpenDispute(context.Background(), e.ID, "late"); err != nil {
		t.Fatalf("first dispute: %v", err)
	}
	_, err := svc.OpenDispute(context.Background(), e.ID, "late again")
	if !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}
}

func TestHandleDisputeRefund(t *testing.T) {
	svc, l := newTestService(t)
	e := createHeld(t, svc, "order-1", 1000, "0.20")
	if _, err := svc.OpenDispute(context.Background(), e.ID, "damaged"); err != nil {
		t.Fatalf("open dispute: %v", err)
	}

	resolved, err := svc.HandleDispute(context.Background(), e.ID, ActionRefund, "customer wins")
	if err != nil {
		t.Fatalf("handle dispute: %v", err)
	}

	if resolved.Status != ledger.EscrowRefunded {
		t.Fatalf("status = %q, want refunded", resolved.Status)
	}
	if resolved.Resolution != "customer wins" {
		t.Fatalf("resolution = %q", resolved.Resolution)
	}
	if got := balance(t, l, customerID, "GNF"); got != 1000 {
		t.Fatalf("customer balance = %d, want full refund 1000", got)
	}
	if got := balance(t, l, sellerID, "GNF"); got != 0 {
		t.Fatalf("seller balance = %d, want 0", got)
	}
}

func TestHandleDisputeReleaseFromDisputed(t *testing.T) {
	svc, l := newTestService(t)
	e := createHeld(t, svc, "order-1", 1000, "0.20")
	if _, err := svc.OpenDispute(context.Background(), e.ID, "late"); err != nil {
		t.Fatalf("open dispute: %v", err)
	}

	resolved, err := svc.HandleDispute(context.Background(), e.ID, ActionRelease, "seller wins")
	if err != nil {
		t.Fatalf("handle dispute: %v", err)
	}

	if resolved.Status != ledger.EscrowReleased {
		t.Fatalf("status = %q, want released", resolved.Status)
	}
	if got := balance(t, l, sellerID, "GNF"); got != 800 {
		t.Fatalf("seller balance = %d, want 800", got)
	}
	if got := balance(t, l, ledger.CommissionAccount, "GNF"); got != 200 {
		t.Fatalf("commission balance = %d, want 200", got)
	}
}

func TestHandleDisputeDirectlyFromHeld(t *testing.T) {
	svc, l := newTestService(t)
	e := createHeld(t, svc, "order-1", 500, "")

	resolved, err := svc.HandleDispute(context.Background(), e.ID, ActionRefund, "cancelled before shipping")
	if err != nil {
		t.Fatalf("handle dispute from held: %v", err)
	}
	if resolved.Status != ledger.EscrowRefunded {
		t.Fatalf("status = %q, want refunded", resolved.Status)
	}
	if got := balance(t, l, customerID, "GNF"); got != 500 {
		t.Fatalf("customer balance = %d, want 500", got)
	}
}

func TestHandleDisputeTerminalEscrow(t *testing.T) {
	svc, _ := newTestService(t)
	e := createHeld(t, svc, "order-1", 1000, "")
	if _, err := svc.ConfirmDelivery(context.Background(), "order-1"); err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}

	_, err := svc.HandleDispute(context.Background(), e.ID, ActionRefund, "too late")
	if !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}
}

func TestHandleDisputeUnknownAction(t *testing.T) {
	svc, _ := newTestService(t)
	e := createHeld(t, svc, "order-1", 1000, "")

	_, err := svc.HandleDispute(context.Background(), e.ID, "split", "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput got %v", err)
	}
}

func TestReleaseDue(t *testing.T) {
	svc, l := newTestService(t)
	createHeld(t, svc, "order-due", 1000, "0.20")
	createHeld(t, svc, "order-fresh", 500, "")

	released, err := svc.ReleaseDue(context.Background(), time.Now().UTC().AddDate(0, 0, 8))
	if err != nil {
		t.Fatalf("release due: %v", err)
	}
	if released != 2 {
		t.Fatalf("released = %d, want 2 past the holding window", released)
	}

	releasedNow, err := svc.ReleaseDue(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("release due now: %v", err)
	}
	if releasedNow != 0 {
		t.Fatalf("released = %d, want 0 before the window elapses", releasedNow)
	}

	if got := balance(t, l, sellerID, "GNF"); got != 800+450 {
		t.Fatalf("seller balance = %d, want 1250", got)
	}
}

func TestReleaseDueSkipsDisputed(t *testing.T) {
	svc, l := newTestService(t)
	e := createHeld(t, svc, "order-1", 1000, "")
	if _, err := svc.OpenDispute(context.Background(), e.ID, "hold it"); err != nil {
		t.Fatalf("open dispute: %v", err)
	}

	released, err := svc.ReleaseDue(context.Background(), time.Now().UTC().AddDate(0, 0, 8))
	if err != nil {
		t.Fatalf("release due: %v", err)
	}
	if released != 0 {
		t.Fatalf("released = %d, want 0 for disputed escrow", released)
	}
	if got := balance(t, l, sellerID, "GNF"); got != 0 {
		t.Fatalf("seller balance = %d, want 0", got)
	}
}

func TestProgress(t *testing.T) {
	now := time.Now().UTC()
	e := ledger.Escrow{HeldSince: now.AddDate(0, 0, -3), AutoReleaseDays: 7}

	pct := Progress(e, now)
	if pct < 42 || pct > 43 {
		t.Fatalf("progress = %f, want ~42.86", pct)
	}

	if got := Progress(ledger.Escrow{HeldSince: now.Add(time.Hour), AutoReleaseDays: 7}, now); got != 0 {
		t.Fatalf("future hold progress = %f, want 0", got)
	}
	if got := Progress(ledger.Escrow{HeldSince: now.AddDate(0, 0, -30), AutoReleaseDays: 7}, now); got != 100 {
		t.Fatalf("overdue progress = %f, want 100", got)
	}
	if got := Progress(ledger.Escrow{HeldSince: now, AutoReleaseDays: 0}, now); got != 100 {
		t.Fatalf("zero window progress = %f, want 100", got)
	}
}
