package notification

import (
    "context"
    "log/slog"
)

// Notification kinds emitted by the transaction engine.
const (
    KindTransferSent      = "transfer_sent"
    KindTransferReceived  = "transfer_received"
    KindDepositCompleted  = "deposit_completed"
    KindDepositPending    = "deposit_pending"
    KindWithdrawRequested = "withdraw_requested"
    KindEscrowHeld        = "escrow_held"
    KindEscrowReleased    = "escrow_released"
    KindEscrowRefunded    = "escrow_refunded"
    KindEscrowDisputed    = "escrow_disputed"
)

// Message describes a notification payload.
type Message struct {
    Kind      string `json:"kind"`
    Recipient string `json:"recipient"`
    Body      string `json:"body"`
}

// Notifier delivers notifications to downstream systems. Delivery is
// best-effort; callers never treat a send failure as a business error.
type Notifier interface {
    Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
    logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
    return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
    if n == nil || n.logger == nil {
        return nil
    }
    n.logger.Info("notification", "kind", message.Kind, "recipient", message.Recipient, "body", message.Body)
    return nil
}
