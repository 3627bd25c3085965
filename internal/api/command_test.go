package api

import (
	"errors"
	"testing"
)

func TestParseCommandEmptyBodyIsRead(t *testing.T) {
	cmd, err := ParseCommand(nil)
	if err != nil {
		t.Fatalf("parse empty body: %v", err)
	}
	if _, ok := cmd.(ReadWallet); !ok {
		t.Fatalf("expected ReadWallet got %T", cmd)
	}
}

func TestParseCommandMissingActionIsRead(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"limit": 5}`))
	if err != nil {
		t.Fatalf("parse body without action: %v", err)
	}
	if _, ok := cmd.(ReadWallet); !ok {
		t.Fatalf("expected ReadWallet got %T", cmd)
	}
}

func TestParseCommandTransfer(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"action":"transfer","recipient_id":"12345AB","amount":100,"currency":"GNF","purpose":"lunch"}`))
	if err != nil {
		t.Fatalf("parse transfer: %v", err)
	}
	transfer, ok := cmd.(*Transfer)
	if !ok {
		t.Fatalf("expected *Transfer got %T", cmd)
	}
	if transfer.RecipientID != "12345AB" || transfer.Amount != 100 || transfer.Currency != "GNF" {
		t.Fatalf("unexpected transfer %+v", transfer)
	}
}

func TestParseCommandEscrowPayment(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"action":"escrow_payment","order_id":"order-1","customer_id":"c","seller_id":"s","total_amount":1000,"commission_rate":0.2}`))
	if err != nil {
		t.Fatalf("parse escrow payment: %v", err)
	}
	escrow, ok := cmd.(*EscrowPayment)
	if !ok {
		t.Fatalf("expected *EscrowPayment got %T", cmd)
	}
	if escrow.CommissionRate == nil || *escrow.CommissionRate != 0.2 {
		t.Fatalf("expected commission rate 0.2 got %v", escrow.CommissionRate)
	}
}

func TestParseCommandEscrowPaymentWithoutRate(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"action":"escrow_payment","order_id":"order-1","customer_id":"c","seller_id":"s","total_amount":1000}`))
	if err != nil {
		t.Fatalf("parse escrow payment: %v", err)
	}
	escrow := cmd.(*EscrowPayment)
	if escrow.CommissionRate != nil {
		t.Fatalf("expected nil commission rate got %v", *escrow.CommissionRate)
	}
}

func TestParseCommandEveryAction(t *testing.T) {
	cases := map[string]func(Command) bool{
		`{"action":"withdraw"}`:         func(c Command) bool { _, ok := c.(*Withdraw); return ok },
		`{"action":"deposit"}`:          func(c Command) bool { _, ok := c.(*Deposit); return ok },
		`{"action":"get_user_by_id"}`:   func(c Command) bool { _, ok := c.(*GetUser); return ok },
		`{"action":"confirm_delivery"}`: func(c Command) bool { _, ok := c.(*ConfirmDelivery); return ok },
		`{"action":"open_dispute"}`:     func(c Command) bool { _, ok := c.(*OpenDispute); return ok },
		`{"action":"handle_dispute"}`:   func(c Command) bool { _, ok := c.(*HandleDispute); return ok },
	}
	for body, check := range cases {
		cmd, err := ParseCommand([]byte(body))
		if err != nil {
			t.Fatalf("parse %s: %v", body, err)
		}
		if !check(cmd) {
			t.Fatalf("body %s parsed to %T", body, cmd)
		}
	}
}

func TestParseCommandUnknownAction(t *testing.T) {
	_, err := ParseCommand([]byte(`{"action":"mint_money"}`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction got %v", err)
	}
}

func TestParseCommandMalformedBody(t *testing.T) {
	if _, err := ParseCommand([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
	if _, err := ParseCommand([]byte(`{"action":"transfer","amount":"lots"}`)); err == nil {
		t.Fatal("expected error for mistyped field")
	}
}
