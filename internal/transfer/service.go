package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/madina-market/madina_pay/internal/identity"
	"github.com/madina-market/madina_pay/internal/ledger"
	"github.com/madina-market/madina_pay/internal/metrics"
	"github.com/madina-market/madina_pay/internal/reference"
)

// ErrInvalidInput marks validation failures detected before any mutation.
var ErrInvalidInput = errors.New("invalid input")

// ErrSelfTransfer rejects transfers where sender and recipient are the same wallet.
var ErrSelfTransfer = errors.New("cannot transfer to own wallet")

var feeRate = decimal.RequireFromString("0.01")

// Fee computes the transfer fee in the currency's smallest unit:
// 1% of the amount rounded half-up, with a minimum of one unit.
func Fee(amount int64) int64 {
	fee := decimal.NewFromInt(amount).Mul(feeRate).Round(0).IntPart()
	if fee < 1 {
		return 1
	}
	return fee
}

// Service validates and executes peer-to-peer transfers against the ledger.
type Service struct {
	ledger   ledger.Ledger
	resolver *identity.Resolver
}

// NewService constructs a transfer service.
func NewService(l ledger.Ledger, resolver *identity.Resolver) *Service {
	return &Service{ledger: l, resolver: resolver}
}

// Input captures the data needed to move funds between users.
type Input struct {
	SenderID            string
	RecipientIdentifier string
	Amount              int64
	Currency            string
	Purpose             string
	Reference           string
}

// Result describes a completed transfer.
type Result struct {
	Reference   string
	Amount      int64
	Currency    string
	Fee         int64
	RecipientID string
}

// Transfer resolves the recipient, checks both wallets, computes the fee and
// executes the posting as one atomic unit. Any failure before commit leaves
// every balance unchanged.
func (s *Service) Transfer(ctx context.Context, input Input) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if input.Currency == "" {
		return Result{}, fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}

	recipient, err := s.resolver.Resolve(ctx, input.RecipientIdentifier)
	if err != nil {
		return Result{}, err
	}
	if recipient.ID == input.SenderID {
		return Result{}, ErrSelfTransfer
	}

	senderWallet, err := s.ledger.GetOrCreateWallet(ctx, input.SenderID)
	if err != nil {
		return Result{}, err
	}
	recipientWallet, err := s.ledger.GetOrCreateWallet(ctx, recipient.ID)
	if err != nil {
		return Result{}, err
	}
	if senderWallet.IsFrozen || recipientWallet.IsFrozen {
		return Result{}, ledger.ErrFrozenWallet
	}

	fee := Fee(input.Amount)
	if senderWallet.Balances[input.Currency] < input.Amount+fee {
		return Result{}, ledger.ErrInsufficientFunds
	}

	ref := input.Reference
	if ref == "" {
		ref = reference.New("TRF")
	}

	if _, err := s.ledger.Transfer(ctx, ledger.TransferPosting{
		Sender:      input.SenderID,
		Recipient:   recipient.ID,
		Amount:      input.Amount,
		Fee:         fee,
		Currency:    input.Currency,
		Reference:   ref,
		Description: input.Purpose,
	}); err != nil {
		return Result{}, err
	}

	metrics.TransfersTotal.Inc()
	metrics.TransferAmountTotal.WithLabelValues(input.Currency).Add(float64(input.Amount))
	metrics.FeeAmountTotal.WithLabelValues(input.Currency).Add(float64(fee))

	return Result{
		Reference:   ref,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Fee:         fee,
		RecipientID: recipient.ID,
	}, nil
}
