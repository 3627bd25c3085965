package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/madina-market/madina_pay/internal/ledger"
	"github.com/madina-market/madina_pay/internal/metrics"
	"github.com/madina-market/madina_pay/internal/notification"
	"github.com/madina-market/madina_pay/internal/outbox"
	"github.com/madina-market/madina_pay/internal/reference"
)

// ErrInvalidInput marks validation failures detected before any mutation.
var ErrInvalidInput = errors.New("invalid input")

// Dispute resolution actions.
const (
	ActionRefund  = "refund"
	ActionRelease = "release"
)

var (
	rateZero = decimal.Zero
	rateOne  = decimal.NewFromInt(1)
)

// Service drives the escrow state machine over the ledger.
type Service struct {
	ledger          ledger.Ledger
	defaultRate     decimal.Decimal
	defaultCurrency string
	autoReleaseDays int
}

// NewService constructs an escrow service with platform defaults.
func NewService(l ledger.Ledger, defaultRate decimal.Decimal, defaultCurrency string, autoReleaseDays int) *Service {
	return &Service{
		ledger:          l,
		defaultRate:     defaultRate,
		defaultCurrency: defaultCurrency,
		autoReleaseDays: autoReleaseDays,
	}
}

// CreateInput captures an order payment to hold in escrow.
type CreateInput struct {
	OrderID        string
	CustomerID     string
	SellerID       string
	TotalAmount    int64
	CommissionRate *decimal.Decimal
	Currency       string
}

// Create splits the order total into seller and commission shares and
// persists a held escrow. The split is exact: seller + commission == total.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Escrow, error) {
	if input.OrderID == "" || input.CustomerID == "" || input.SellerID == "" {
		return ledger.Escrow{}, fmt.Errorf("%w: order, customer and seller are required", ErrInvalidInput)
	}
	if input.TotalAmount <= 0 {
		return ledger.Escrow{}, fmt.Errorf("%w: total amount must be positive", ErrInvalidInput)
	}

	rate := s.defaultRate
	if input.CommissionRate != nil {
		rate = *input.CommissionRate
	}
	if rate.LessThan(rateZero) || rate.GreaterThan(rateOne) {
		return ledger.Escrow{}, fmt.Errorf("%w: commission rate must be between 0 and 1", ErrInvalidInput)
	}

	currency := input.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	total := decimal.NewFromInt(input.TotalAmount)
	commission := total.Mul(rate).Round(0).IntPart()
	seller := input.TotalAmount - commission

	now := time.Now().UTC()
	escrow := ledger.Escrow{
		ID:               uuid.NewString(),
		OrderID:          input.OrderID,
		CustomerID:       input.CustomerID,
		SellerID:         input.SellerID,
		TotalAmount:      input.TotalAmount,
		SellerAmount:     seller,
		CommissionAmount: commission,
		CommissionRate:   rate,
		Currency:         currency,
		Status:           ledger.EscrowHeld,
		HeldSince:        now,
		AutoReleaseAt:    now.AddDate(0, 0, s.autoReleaseDays),
		AutoReleaseDays:  s.autoReleaseDays,
	}

	event := &outbox.Event{
		ID:        uuid.NewString(),
		Kind:      notification.KindEscrowHeld,
		Recipient: input.SellerID,
		Body:      fmt.Sprintf("Payment of %d %s for order %s is held in escrow", input.TotalAmount, currency, input.OrderID),
	}
	if err := s.ledger.CreateEscrow(ctx, escrow, event); err != nil {
		return ledger.Escrow{}, err
	}

	metrics.EscrowTransitionsTotal.WithLabelValues(ledger.EscrowHeld).Inc()
	return escrow, nil
}

// ConfirmDelivery releases the held escrow for the order: the seller is
// credited the seller amount and the platform retains the commission.
func (s *Service) ConfirmDelivery(ctx context.Context, orderID string) (ledger.Escrow, error) {
	escrow, err := s.ledger.EscrowByOrderID(ctx, orderID)
	if err != nil {
		return ledger.Escrow{}, err
	}
	return s.release(ctx, escrow, ledger.EscrowHeld, "", "escrow release")
}

// OpenDispute moves a held escrow into dispute. No balances change.
func (s *Service) OpenDispute(ctx context.Context, escrowID, reason string) (ledger.Escrow, error) {
	escrow, err := s.ledger.EscrowByID(ctx, escrowID)
	if err != nil {
		return ledger.Escrow{}, err
	}
	updated, err := s.ledger.TransitionEscrow(ctx, ledger.EscrowTransition{
		EscrowID: escrowID,
		From:     ledger.EscrowHeld,
		To:       ledger.EscrowDisputed,
		Event: &outbox.Event{
			ID:        uuid.NewString(),
			Kind:      notification.KindEscrowDisputed,
			Recipient: escrow.SellerID,
			Body:      fmt.Sprintf("Order %s is under dispute: %s", escrow.OrderID, reason),
		},
	})
	if err != nil {
		return ledger.Escrow{}, err
	}
	metrics.EscrowTransitionsTotal.WithLabelValues(ledger.EscrowDisputed).Inc()
	return updated, nil
}

// HandleDispute resolves an escrow with the given action, crediting wallets
// accordingly and recording the resolution text. Both held and disputed
// escrows can be resolved; terminal escrows fail with ErrInvalidTransition.
func (s *Service) HandleDispute(ctx context.Context, escrowID, action, resolution string) (ledger.Escrow, error) {
	escrow, err := s.ledger.EscrowByID(ctx, escrowID)
	if err != nil {
		return ledger.Escrow{}, err
	}
	if escrow.Status != ledger.EscrowHeld && escrow.Status != ledger.EscrowDisputed {
		return ledger.Escrow{}, ledger.ErrInvalidTransition
	}

	switch action {
	case ActionRelease:
		return s.release(ctx, escrow, escrow.Status, resolution, "dispute release")
	case ActionRefund:
		return s.refund(ctx, escrow, escrow.Status, resolution)
	default:
		return ledger.Escrow{}, fmt.Errorf("%w: dispute action must be refund or release", ErrInvalidInput)
	}
}

// ReleaseDue releases every held escrow whose auto-release timestamp has
// passed. Escrows that moved concurrently are skipped.
func (s *Service) ReleaseDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.ledger.DueEscrows(ctx, now, 100)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, escrow := range due {
		desc := fmt.Sprintf("auto-release after %d days", escrow.AutoReleaseDays)
		if _, err := s.release(ctx, escrow, ledger.EscrowHeld, "", desc); err != nil {
			if errors.Is(err, ledger.ErrInvalidTransition) {
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}

// Progress reports how far a held escrow is through its holding period as a
// percentage clamped to [0, 100].
func Progress(e ledger.Escrow, now time.Time) float64 {
	window := time.Duration(e.AutoReleaseDays) * 24 * time.Hour
	if window <= 0 {
		return 100
	}
	pct := float64(now.Sub(e.HeldSince).Milliseconds()) / float64(window.Milliseconds()) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (s *Service) release(ctx context.Context, escrow ledger.Escrow, from, resolution, description string) (ledger.Escrow, error) {
	ref := reference.New("ESC")
	updated, err := s.ledger.TransitionEscrow(ctx, ledger.EscrowTransition{
		EscrowID:   escrow.ID,
		From:       from,
		To:         ledger.EscrowReleased,
		Reference:  ref,
		Resolution: resolution,
		Credits: []ledger.CreditLeg{
			{Owner: escrow.SellerID, Amount: escrow.SellerAmount, Description: fmt.Sprintf("%s for order %s", description, escrow.OrderID), Counterparty: escrow.CustomerID},
			{Owner: ledger.CommissionAccount, Amount: escrow.CommissionAmount, Description: fmt.Sprintf("commission for order %s", escrow.OrderID), Counterparty: escrow.SellerID},
		},
		Event: &outbox.Event{
			ID:        uuid.NewString(),
			Kind:      notification.KindEscrowReleased,
			Recipient: escrow.SellerID,
			Body:      fmt.Sprintf("Escrow for order %s released: %d %s credited", escrow.OrderID, escrow.SellerAmount, escrow.Currency),
		},
	})
	if err != nil {
		return ledger.Escrow{}, err
	}
	metrics.EscrowTransitionsTotal.WithLabelValues(ledger.EscrowReleased).Inc()
	return updated, nil
}

func (s *Service) refund(ctx context.Context, escrow ledger.Escrow, from, resolution string) (ledger.Escrow, error) {
	ref := reference.New("ESC")
	updated, err := s.ledger.TransitionEscrow(ctx, ledger.EscrowTransition{
		EscrowID:   escrow.ID,
		From:       from,
		To:         ledger.EscrowRefunded,
		Reference:  ref,
		Resolution: resolution,
		Credits: []ledger.CreditLeg{
			{Owner: escrow.CustomerID, Amount: escrow.TotalAmount, Description: fmt.Sprintf("escrow refund for order %s", escrow.OrderID), Counterparty: escrow.SellerID},
		},
		Event: &outbox.Event{
			ID:        uuid.NewString(),
			Kind:      notification.KindEscrowRefunded,
			Recipient: escrow.CustomerID,
			Body:      fmt.Sprintf("Escrow for order %s refunded: %d %s returned", escrow.OrderID, escrow.TotalAmount, escrow.Currency),
		},
	})
	if err != nil {
		return ledger.Escrow{}, err
	}
	metrics.EscrowTransitionsTotal.WithLabelValues(ledger.EscrowRefunded).Inc()
	return updated, nil
}
