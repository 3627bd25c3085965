package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal counts completed peer-to-peer transfers.
	TransfersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "madinapay_transfers_total",
		Help: "Completed peer-to-peer transfers.",
	})

	// TransferAmountTotal sums transferred amounts in the smallest unit per currency.
	TransferAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "madinapay_transfer_amount_total",
		Help: "Total transferred amount in the currency's smallest unit.",
	}, []string{"currency"})

	// FeeAmountTotal sums collected transfer fees per currency.
	FeeAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "madinapay_fee_amount_total",
		Help: "Total collected transfer fees in the currency's smallest unit.",
	}, []string{"currency"})

	// FundingRequestsTotal counts deposit and withdrawal requests by kind and status.
	FundingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "madinapay_funding_requests_total",
		Help: "Deposit and withdrawal requests.",
	}, []string{"kind", "status"})

	// EscrowTransitionsTotal counts escrow state transitions by destination state.
	EscrowTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "madinapay_escrow_transitions_total",
		Help: "Escrow state machine transitions.",
	}, []string{"to_status"})
)
