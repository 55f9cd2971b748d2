package service

import (
	"context"
	"fmt"
	"time"

	"kobopay/internal/core/domain"
	"kobopay/internal/core/ports"
	"kobopay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReportingServiceImpl implements ports.ReportingService over the ledger.
type ReportingServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	log        zerolog.Logger
}

// NewReportingService creates a new ReportingServiceImpl.
func NewReportingService(walletRepo ports.WalletRepository, txRepo ports.TransactionRepository, log zerolog.Logger) *ReportingServiceImpl {
	return &ReportingServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		log:        log,
	}
}

// GetBalance returns the wallet's stored balance.
func (s *ReportingServiceImpl) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return decimal.Zero, apperror.ErrNotFound("wallet")
	}
	return wallet.Balance, nil
}

// GetTransaction returns one of the user's ledger entries by reference.
func (s *ReportingServiceImpl) GetTransaction(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil || txn.UserID != userID {
		return nil, apperror.ErrNotFound("transaction")
	}
	return txn, nil
}

// ListTransactions returns a filtered, paginated slice of the user's ledger.
func (s *ReportingServiceImpl) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, total, nil
}

// GetStats returns per-category/per-status counts and sums, optionally
// restricted to a time window.
func (s *ReportingServiceImpl) GetStats(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]ports.LedgerAggregate, error) {
	aggs, err := s.txRepo.Aggregate(ctx, userID, from, to)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("aggregate transactions: %w", err))
	}
	return aggs, nil
}

// VerifyWalletLedger checks conservation: the stored balance must equal the
// balance the ledger implies. A mismatch means money appeared or vanished
// outside the ledger and is surfaced for manual investigation, never
// auto-corrected.
func (s *ReportingServiceImpl) VerifyWalletLedger(ctx context.Context, userID uuid.UUID) error {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("wallet")
	}

	implied, err := s.txRepo.BalanceFromLedger(ctx, userID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("ledger balance: %w", err))
	}

	if !wallet.Balance.Equal(implied) {
		s.log.Error().
			Str("user_id", userID.String()).
			Str("stored", wallet.Balance.String()).
			Str("implied", implied.String()).
			Msg("wallet balance diverges from ledger")
		return apperror.ErrInvariantViolation(
			fmt.Errorf("stored balance %s does not match ledger balance %s", wallet.Balance, implied))
	}
	return nil
}
