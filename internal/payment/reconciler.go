package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	internal "github.com/frahmantamala/payment-lifecycle/internal"
	datamodel "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/payment"
)

// Reconciler sweeps stale pending records on a fixed interval and asks the
// gateway what actually happened to each one. It exists for the deliveries
// that never arrive; the transitions it produces go through the exact same
// engine as webhook transitions, tagged source=reconciliation.
type Reconciler struct {
	paymentService ServiceAPI
	interval       time.Duration
	staleness      time.Duration
	batchSize      int
	logger         *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReconciler(paymentService ServiceAPI, cfg internal.ReconciliationConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		paymentService: paymentService,
		interval:       cfg.Interval,
		staleness:      cfg.StalenessThreshold,
		batchSize:      cfg.BatchSize,
		logger:         logger,
	}
}

// Start launches the sweep loop. The first sweep runs after one full
// interval, not immediately.
func (rc *Reconciler) Start(ctx context.Context) {
	ctx, rc.cancel = context.WithCancel(ctx)

	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()

		ticker := time.NewTicker(rc.interval)
		defer ticker.Stop()

		rc.logger.Info("reconciler started",
			"interval", rc.interval,
			"staleness_threshold", rc.staleness,
			"batch_size", rc.batchSize)

		for {
			select {
			case <-ctx.Done():
				rc.logger.Info("reconciler stopped")
				return
			case <-ticker.C:
				rc.Sweep(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish its
// current record.
func (rc *Reconciler) Stop() {
	if rc.cancel != nil {
		rc.cancel()
	}
	rc.wg.Wait()
}

// Sweep runs one reconciliation pass. One record failing to reconcile never
// stops the rest of the batch; cancellation is checked between records so a
// shutdown does not wait for the whole batch.
func (rc *Reconciler) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-rc.staleness)

	records, err := rc.paymentService.StalePending(cutoff, rc.batchSize)
	if err != nil {
		rc.logger.Error("failed to list stale pending records", "error", err)
		return
	}

	if len(records) == 0 {
		return
	}

	rc.logger.Info("reconciliation sweep started",
		"stale_records", len(records),
		"cutoff", cutoff)

	var applied, rejected, failed int
	for _, rec := range records {
		select {
		case <-ctx.Done():
			rc.logger.Info("reconciliation sweep cancelled",
				"processed", applied+rejected+failed,
				"remaining", len(records)-applied-rejected-failed)
			return
		default:
		}

		recordCtx, cancel := internal.WithTimeout(ctx, 15*time.Second)
		result, err := rc.paymentService.ReconcileRecord(recordCtx, rec)
		cancel()
		if err != nil {
			failed++
			rc.logger.Error("failed to reconcile record",
				"error", err,
				"record_id", rec.ID,
				"subject_id", rec.SubjectID)
			continue
		}

		if result.Outcome == datamodel.OutcomeApplied {
			applied++
		} else {
			rejected++
		}
	}

	rc.logger.Info("reconciliation sweep finished",
		"applied", applied,
		"rejected", rejected,
		"errors", failed)
}
