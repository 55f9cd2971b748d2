package worker

import (
	"context"
	"time"

	"kobopay/config"
	"kobopay/internal/core/domain"
	"kobopay/internal/core/ports"
	"kobopay/internal/metrics"

	"github.com/rs/zerolog"
)

const lockName = "reconciler"

// Reconciler resolves pending transactions whose provider outcome was
// indeterminate. It requeries the provider and finalizes on a confirmed
// answer; entries that stay unconfirmed past the escalate window are
// flagged for manual review and never guessed at.
type Reconciler struct {
	txRepo  ports.TransactionRepository
	ledger  ports.LedgerService
	gateway ports.ProviderGateway
	lock    ports.WorkerLock
	cfg     config.ReconciliationConfig
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewReconciler creates a reconciliation worker.
func NewReconciler(
	txRepo ports.TransactionRepository,
	ledger ports.LedgerService,
	gateway ports.ProviderGateway,
	lock ports.WorkerLock,
	cfg config.ReconciliationConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		txRepo:  txRepo,
		ledger:  ledger,
		gateway: gateway,
		lock:    lock,
		cfg:     cfg,
		metrics: m,
		log:     log.With().Str("component", "reconciler").Logger(),
	}
}

// Run executes reconciliation passes on the configured interval until the
// context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.log.Info().
		Dur("interval", r.cfg.Interval).
		Dur("grace_window", r.cfg.GraceWindow).
		Msg("reconciliation worker started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciliation worker stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}

// RunOnce performs a single reconciliation pass. The fleet-wide lock makes
// a pass single-flight; a pass finding the lock held is a no-op, not an
// error. Exposed for tests and on-demand runs.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	acquired, err := r.lock.Acquire(ctx, lockName, r.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		r.log.Debug().Msg("another instance holds the reconciliation lock, skipping pass")
		return nil
	}
	defer func() {
		if err := r.lock.Release(ctx, lockName); err != nil {
			r.log.Warn().Err(err).Msg("failed to release reconciliation lock")
		}
	}()

	now := time.Now().UTC()
	cutoff := now.Add(-r.cfg.GraceWindow)

	pending, err := r.txRepo.ListPendingBefore(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	r.log.Info().Int("count", len(pending)).Msg("reconciling pending transactions")

	for i := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.reconcile(ctx, &pending[i], now)
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, txn *domain.Transaction, now time.Time) {
	result, err := r.gateway.Requery(ctx, txn)
	if err != nil {
		// A requery that cannot even be made counts as indeterminate, so the
		// entry still ages toward escalation instead of being skipped forever.
		r.log.Warn().Err(err).Str("reference", txn.Reference).Msg("requery not possible for transaction")
		result = &domain.ProviderResult{Outcome: domain.OutcomeIndeterminate}
	}

	switch result.Outcome {
	case domain.OutcomeConfirmedSuccess:
		r.finalize(ctx, txn, ports.FinalizeUpdate{
			Status:            domain.TransactionStatusSuccess,
			ProviderReference: optionalRef(result.ProviderReference),
			ProviderPayload:   result.RawPayload,
		}, "success")

	case domain.OutcomeConfirmedFailure:
		reason := result.FailureReason
		r.finalize(ctx, txn, ports.FinalizeUpdate{
			Status:            domain.TransactionStatusFailed,
			ProviderReference: optionalRef(result.ProviderReference),
			ProviderPayload:   result.RawPayload,
			FailureReason:     &reason,
		}, "failed")

	default:
		if txn.Age(now) > r.cfg.EscalateAfter {
			if err := r.txRepo.MarkForReview(ctx, txn.Reference); err != nil {
				r.log.Error().Err(err).Str("reference", txn.Reference).Msg("failed to flag transaction for review")
				return
			}
			r.metrics.PendingEscalations.Inc()
			r.metrics.ReconciliationResolutions.WithLabelValues("needs_review").Inc()
			r.log.Warn().
				Str("reference", txn.Reference).
				Dur("age", txn.Age(now)).
				Msg("transaction unresolved past escalate window, flagged for review")
			return
		}
		r.metrics.ReconciliationResolutions.WithLabelValues("still_pending").Inc()
	}
}

func (r *Reconciler) finalize(ctx context.Context, txn *domain.Transaction, update ports.FinalizeUpdate, disposition string) {
	if _, err := r.ledger.FinalizeTransaction(ctx, txn.Reference, update); err != nil {
		r.log.Error().Err(err).Str("reference", txn.Reference).Msg("failed to finalize reconciled transaction")
		return
	}
	r.metrics.ReconciliationResolutions.WithLabelValues(disposition).Inc()
	r.log.Info().
		Str("reference", txn.Reference).
		Str("status", string(update.Status)).
		Msg("pending transaction reconciled")
}

func optionalRef(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
