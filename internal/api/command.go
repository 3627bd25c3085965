package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownAction indicates the request named an action the engine does not support.
var ErrUnknownAction = errors.New("unknown action")

// Command is the closed set of wallet engine operations. Requests are parsed
// into exactly one variant; dispatch is an exhaustive type switch rather than
// a string-keyed table with a runtime fallback.
type Command interface {
	isCommand()
}

// ReadWallet returns the caller's wallet with recent activity.
type ReadWallet struct{}

// Transfer moves funds from the caller to another user.
type Transfer struct {
	RecipientID string `json:"recipient_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Purpose     string `json:"purpose"`
	Reference   string `json:"reference"`
}

// Withdraw records a pending withdrawal request.
type Withdraw struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	BankDetails string `json:"bank_details"`
}

// Deposit funds the caller's wallet.
type Deposit struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
}

// GetUser resolves a readable or canonical identifier to account details.
type GetUser struct {
	UserID string `json:"user_id"`
}

// EscrowPayment holds a captured order payment in escrow.
type EscrowPayment struct {
	OrderID        string   `json:"order_id"`
	CustomerID     string   `json:"customer_id"`
	SellerID       string   `json:"seller_id"`
	TotalAmount    int64    `json:"total_amount"`
	CommissionRate *float64 `json:"commission_rate"`
	Currency       string   `json:"currency"`
}

// ConfirmDelivery releases the escrow for an order.
type ConfirmDelivery struct {
	OrderID string `json:"order_id"`
}

// OpenDispute moves a held escrow into dispute.
type OpenDispute struct {
	EscrowID string `json:"escrow_id"`
	Reason   string `json:"reason"`
}

// HandleDispute resolves an escrow by refunding or releasing it.
type HandleDispute struct {
	EscrowID   string `json:"escrow_id"`
	Action     string `json:"dispute_action"`
	Resolution string `json:"resolution"`
}

func (ReadWallet) isCommand()      {}
func (Transfer) isCommand()        {}
func (Withdraw) isCommand()        {}
func (Deposit) isCommand()         {}
func (GetUser) isCommand()         {}
func (EscrowPayment) isCommand()   {}
func (ConfirmDelivery) isCommand() {}
func (OpenDispute) isCommand()     {}
func (HandleDispute) isCommand()   {}

// ParseCommand decodes a request body into its command variant. An empty body
// or missing action is a wallet read.
func ParseCommand(body []byte) (Command, error) {
	if len(body) == 0 {
		return ReadWallet{}, nil
	}

	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed request body: %w", err)
	}

	decode := func(cmd Command) (Command, error) {
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, fmt.Errorf("malformed %s request: %w", envelope.Action, err)
		}
		return cmd, nil
	}

	switch envelope.Action {
	case "":
		return ReadWallet{}, nil
	case "transfer":
		return decode(&Transfer{})
	case "withdraw":
		return decode(&Withdraw{})
	case "deposit":
		return decode(&Deposit{})
	case "get_user_by_id":
		return decode(&GetUser{})
	case "escrow_payment":
		return decode(&EscrowPayment{})
	case "confirm_delivery":
		return decode(&ConfirmDelivery{})
	case "open_dispute":
		return decode(&OpenDispute{})
	case "handle_dispute":
		return decode(&HandleDispute{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, envelope.Action)
	}
}
