package escrow

import (
	"context"
	"log/slog"
	"time"
)

// AutoReleaser periodically releases held escrows whose holding period
// elapsed without a dispute.
type AutoReleaser struct {
	service  *Service
	logger   *slog.Logger
	interval time.Duration
}

// NewAutoReleaser builds the auto-release worker.
func NewAutoReleaser(service *Service, logger *slog.Logger, interval time.Duration) *AutoReleaser {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AutoReleaser{service: service, logger: logger, interval: interval}
}

// Run releases due escrows until the context is cancelled.
func (a *AutoReleaser) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := a.service.ReleaseDue(ctx, time.Now().UTC())
			if err != nil {
				a.logger.Warn("escrow auto-release", "error", err)
			}
			if released > 0 {
				a.logger.Info("escrows auto-released", "count", released)
			}
		}
	}
}
