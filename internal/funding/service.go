package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/madina-market/madina_pay/internal/ledger"
	"github.com/madina-market/madina_pay/internal/metrics"
	"github.com/madina-market/madina_pay/internal/reference"
)

// ErrInvalidInput marks validation failures detected before any mutation.
var ErrInvalidInput = errors.New("invalid input")

// PaymentMethodWallet is the trusted self-service funding path credited
// immediately; every other method awaits external confirmation.
const PaymentMethodWallet = "wallet"

// Service handles deposit and withdrawal requests against the ledger.
type Service struct {
	ledger ledger.Ledger
}

// NewService constructs a funding service.
func NewService(l ledger.Ledger) *Service {
	return &Service{ledger: l}
}

// WithdrawInput captures a withdrawal request.
type WithdrawInput struct {
	UserID      string
	Amount      int64
	Currency    string
	BankDetails string
}

// DepositInput captures a deposit request.
type DepositInput struct {
	UserID        string
	Amount        int64
	Currency      string
	PaymentMethod string
}

// Result describes the recorded funding request.
type Result struct {
	Reference string
	Status    string
	Message   string
	// NewBalance is set only when the deposit was credited immediately.
	NewBalance *int64
}

// Withdraw validates the wallet can cover the amount and records a pending
// withdrawal for administrative approval. The balance is not debited or
// reserved at request time; approval settles it out of band.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if input.Currency == "" {
		return Result{}, fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}
	if input.BankDetails == "" {
		return Result{}, fmt.Errorf("%w: bank details are required", ErrInvalidInput)
	}

	ref := reference.New("WDR")
	outcome, err := s.ledger.WithdrawRequest(ctx, ledger.FundingPosting{
		Owner:       input.UserID,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Reference:   ref,
		Description: fmt.Sprintf("withdrawal to %s", input.BankDetails),
	})
	if err != nil {
		return Result{}, err
	}

	metrics.FundingRequestsTotal.WithLabelValues(ledger.KindWithdrawal, outcome.Status).Inc()
	return Result{
		Reference: ref,
		Status:    outcome.Status,
		Message:   "withdrawal request submitted for approval",
	}, nil
}

// Deposit credits the wallet immediately for the trusted wallet method and
// records a pending transaction for every other payment method.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if input.Currency == "" {
		return Result{}, fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}
	if input.PaymentMethod == "" {
		return Result{}, fmt.Errorf("%w: payment method is required", ErrInvalidInput)
	}

	instant := input.PaymentMethod == PaymentMethodWallet
	ref := reference.New("DEP")
	outcome, err := s.ledger.Deposit(ctx, ledger.FundingPosting{
		Owner:       input.UserID,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Reference:   ref,
		Description: fmt.Sprintf("deposit via %s", input.PaymentMethod),
		Instant:     instant,
	})
	if err != nil {
		return Result{}, err
	}

	metrics.FundingRequestsTotal.WithLabelValues(ledger.KindDeposit, outcome.Status).Inc()
	result := Result{Reference: ref, Status: outcome.Status}
	if instant {
		balance := outcome.Balance
		result.NewBalance = &balance
		result.Message = "deposit completed"
	} else {
		result.Message = fmt.Sprintf("deposit via %s awaiting confirmation", input.PaymentMethod)
	}
	return result, nil
}
