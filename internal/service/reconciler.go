package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultReconcileInterval = 5 * time.Minute

// Reconciler periodically scans for payment attempts stuck in AUTHORIZING.
// The scan itself only reports; operators act on the audit trail and logs.
type Reconciler struct {
	payments       *PaymentService
	interval       time.Duration
	timeoutMinutes int
	logger         *zap.Logger
}

func NewReconciler(
	payments *PaymentService,
	interval time.Duration,
	timeoutMinutes int,
	logger *zap.Logger,
) (*Reconciler, error) {
	if payments == nil {
		return nil, fmt.Errorf("payment service is required")
	}
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if timeoutMinutes <= 0 {
		timeoutMinutes = defaultStuckTimeoutMinutes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		payments:       payments,
		interval:       interval,
		timeoutMinutes: timeoutMinutes,
		logger:         logger,
	}, nil
}

func (r *Reconciler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-stuck attempts do not wait for the first ticker edge.
	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	report, err := r.payments.RunReconciliation(ctx, r.timeoutMinutes)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("reconciliation scan failed", zap.Error(err))
		}
		return
	}

	if report.TotalStuck > 0 {
		r.logger.Warn("reconciliation found stuck attempts",
			zap.Int("totalStuck", report.TotalStuck),
			zap.Int("timeoutMinutes", r.timeoutMinutes),
		)
	}
}
