package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/madina-market/madina_pay/internal/escrow"
	"github.com/madina-market/madina_pay/internal/funding"
	"github.com/madina-market/madina_pay/internal/identity"
	"github.com/madina-market/madina_pay/internal/ledger"
	"github.com/madina-market/madina_pay/internal/transfer"
)

const recentLimit = 20

// Handler serves the wallet action endpoint: a single authenticated route
// whose request body selects one command from the closed set.
type Handler struct {
	ledger   ledger.Ledger
	resolver *identity.Resolver
	transfer *transfer.Service
	funding  *funding.Service
	escrow   *escrow.Service
	logger   *slog.Logger
}

// NewHandler wires the action endpoint over the domain services.
func NewHandler(l ledger.Ledger, resolver *identity.Resolver, tr *transfer.Service, fd *funding.Service, es *escrow.Service, logger *slog.Logger) *Handler {
	return &Handler{ledger: l, resolver: resolver, transfer: tr, funding: fd, escrow: es, logger: logger}
}

// Action parses the command and dispatches it for the authenticated user.
func (h *Handler) Action(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	cmd, err := ParseCommand(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	switch cmd := cmd.(type) {
	case ReadWallet:
		return h.readWallet(c, userID)
	case *Transfer:
		return h.doTransfer(c, userID, cmd)
	case *Withdraw:
		return h.doWithdraw(c, userID, cmd)
	case *Deposit:
		return h.doDeposit(c, userID, cmd)
	case *GetUser:
		return h.getUser(c, cmd)
	case *EscrowPayment:
		return h.escrowPayment(c, cmd)
	case *ConfirmDelivery:
		return h.confirmDelivery(c, cmd)
	case *OpenDispute:
		return h.openDispute(c, cmd)
	case *HandleDispute:
		return h.handleDispute(c, cmd)
	default:
		return fiber.NewError(fiber.StatusBadRequest, ErrUnknownAction.Error())
	}
}

func (h *Handler) readWallet(c *fiber.Ctx, userID string) error {
	wallet, err := h.ledger.GetOrCreateWallet(c.Context(), userID)
	if err != nil {
		return domainError(err)
	}
	transactions, err := h.ledger.Transactions(c.Context(), userID, recentLimit)
	if err != nil {
		return domainError(err)
	}
	escrows, err := h.ledger.EscrowsForUser(c.Context(), userID, recentLimit)
	if err != nil {
		return domainError(err)
	}

	now := time.Now().UTC()
	escrowViews := make([]fiber.Map, 0, len(escrows))
	for _, e := range escrows {
		escrowViews = append(escrowViews, escrowView(e, now))
	}
	txViews := make([]fiber.Map, 0, len(transactions))
	for _, tx := range transactions {
		txViews = append(txViews, transactionView(tx))
	}

	balances := wallet.Balances
	if balances == nil {
		balances = map[string]int64{}
	}
	return c.JSON(fiber.Map{
		"wallet": fiber.Map{
			"owner":     wallet.Owner,
			"balances":  balances,
			"is_frozen": wallet.IsFrozen,
		},
		"transactions":        txViews,
		"escrow_transactions": escrowViews,
	})
}

func (h *Handler) doTransfer(c *fiber.Ctx, userID string, cmd *Transfer) error {
	result, err := h.transfer.Transfer(c.Context(), transfer.Input{
		SenderID:            userID,
		RecipientIdentifier: cmd.RecipientID,
		Amount:              cmd.Amount,
		Currency:            cmd.Currency,
		Purpose:             cmd.Purpose,
		Reference:           cmd.Reference,
	})
	if err != nil {
		return domainError(err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"reference":    result.Reference,
		"amount":       result.Amount,
		"currency":     result.Currency,
		"fee":          result.Fee,
		"recipient_id": result.RecipientID,
	})
}

func (h *Handler) doWithdraw(c *fiber.Ctx, userID string, cmd *Withdraw) error {
	result, err := h.funding.Withdraw(c.Context(), funding.WithdrawInput{
		UserID:      userID,
		Amount:      cmd.Amount,
		Currency:    cmd.Currency,
		BankDetails: cmd.BankDetails,
	})
	if err != nil {
		return domainError(err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"reference": result.Reference,
		"status":    result.Status,
		"message":   result.Message,
	})
}

func (h *Handler) doDeposit(c *fiber.Ctx, userID string, cmd *Deposit) error {
	result, err := h.funding.Deposit(c.Context(), funding.DepositInput{
		UserID:        userID,
		Amount:        cmd.Amount,
		Currency:      cmd.Currency,
		PaymentMethod: cmd.PaymentMethod,
	})
	if err != nil {
		return domainError(err)
	}
	response := fiber.Map{
		"success":   true,
		"reference": result.Reference,
		"status":    result.Status,
		"message":   result.Message,
	}
	if result.NewBalance != nil {
		response["new_balance"] = *result.NewBalance
	}
	return c.JSON(response)
}

func (h *Handler) getUser(c *fiber.Ctx, cmd *GetUser) error {
	user, err := h.resolver.Resolve(c.Context(), cmd.UserID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(fiber.Map{
		"user_id":     user.ID,
		"full_name":   user.FullName,
		"phone":       user.Phone,
		"readable_id": user.ReadableID,
		"role":        user.Role,
	})
}

func (h *Handler) escrowPayment(c *fiber.Ctx, cmd *EscrowPayment) error {
	var rate *decimal.Decimal
	if cmd.CommissionRate != nil {
		r := decimal.NewFromFloat(*cmd.CommissionRate)
		rate = &r
	}
	created, err := h.escrow.Create(c.Context(), escrow.CreateInput{
		OrderID:        cmd.OrderID,
		CustomerID:     cmd.CustomerID,
		SellerID:       cmd.SellerID,
		TotalAmount:    cmd.TotalAmount,
		CommissionRate: rate,
		Currency:       cmd.Currency,
	})
	if err != nil {
		return domainError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":       true,
		"escrow_id":     created.ID,
		"message":       "payment held in escrow",
		"seller_amount": created.SellerAmount,
		"commission":    created.CommissionAmount,
		"escrow":        escrowView(created, time.Now().UTC()),
	})
}

func (h *Handler) confirmDelivery(c *fiber.Ctx, cmd *ConfirmDelivery) error {
	if cmd.OrderID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "order_id is required")
	}
	released, err := h.escrow.ConfirmDelivery(c.Context(), cmd.OrderID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "delivery confirmed, escrow released to seller",
		"escrow":  escrowView(released, time.Now().UTC()),
	})
}

func (h *Handler) openDispute(c *fiber.Ctx, cmd *OpenDispute) error {
	if cmd.EscrowID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "escrow_id is required")
	}
	disputed, err := h.escrow.OpenDispute(c.Context(), cmd.EscrowID, cmd.Reason)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "dispute opened, escrow on hold",
		"escrow":  escrowView(disputed, time.Now().UTC()),
	})
}

func (h *Handler) handleDispute(c *fiber.Ctx, cmd *HandleDispute) error {
	if cmd.EscrowID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "escrow_id is required")
	}
	resolved, err := h.escrow.HandleDispute(c.Context(), cmd.EscrowID, cmd.Action, cmd.Resolution)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "dispute resolved, escrow " + resolved.Status,
		"escrow":  escrowView(resolved, time.Now().UTC()),
	})
}

func transactionView(tx ledger.Transaction) fiber.Map {
	return fiber.Map{
		"id":           tx.ID,
		"type":         tx.Kind,
		"amount":       tx.Amount,
		"currency":     tx.Currency,
		"status":       tx.Status,
		"description":  tx.Description,
		"reference":    tx.Reference,
		"counterparty": tx.Counterparty,
		"created_at":   tx.CreatedAt,
	}
}

func escrowView(e ledger.Escrow, now time.Time) fiber.Map {
	view := fiber.Map{
		"escrow_id":         e.ID,
		"order_id":          e.OrderID,
		"customer_id":       e.CustomerID,
		"seller_id":         e.SellerID,
		"total_amount":      e.TotalAmount,
		"seller_amount":     e.SellerAmount,
		"commission_amount": e.CommissionAmount,
		"commission_rate":   e.CommissionRate.String(),
		"currency":          e.Currency,
		"status":            e.Status,
		"held_since":        e.HeldSince,
		"auto_release_at":   e.AutoReleaseAt,
	}
	if e.Status == ledger.EscrowHeld {
		view["progress_percent"] = escrow.Progress(e, now)
	}
	if e.Resolution != "" {
		view["resolution"] = e.Resolution
	}
	return view
}

// domainError translates service errors into HTTP responses. Not-found errors
// map to 404, rejected input and state errors to 400, everything else to 500.
func domainError(err error) error {
	switch {
	case errors.Is(err, identity.ErrRecipientNotFound),
		errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, ledger.ErrEscrowNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrInvalidIdentifier),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrFrozenWallet),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrDuplicateOrder),
		errors.Is(err, ledger.ErrDuplicateReference),
		errors.Is(err, transfer.ErrInvalidInput),
		errors.Is(err, transfer.ErrSelfTransfer),
		errors.Is(err, funding.ErrInvalidInput),
		errors.Is(err, escrow.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fmt.Errorf("wallet action: %w", err)
	}
}
