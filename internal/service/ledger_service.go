package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kobopay/internal/core/domain"
	"kobopay/internal/core/ports"
	"kobopay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerServiceImpl implements ports.LedgerService. It is the only code
// path that touches wallet balances; every mutation pairs the balance write
// with a ledger insert or update in one database transaction, under a
// FOR UPDATE lock on the wallet row.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
	}
}

// ReserveDebit atomically checks funds, decrements the balance and inserts a
// pending debit under reference. The money is held, not spent: finalizing as
// failed returns it, finalizing as success keeps the entry as the record.
func (s *LedgerServiceImpl) ReserveDebit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string, category domain.Category) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	if !wallet.CanDebit(amount) {
		return nil, apperror.ErrInsufficientFunds()
	}

	newBalance := wallet.Balance.Sub(amount)
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Reference:     reference,
		UserID:        userID,
		Direction:     domain.DirectionDebit,
		Amount:        amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  newBalance,
		Category:      category,
		Status:        domain.TransactionStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := txn.CheckBalanceDelta(); err != nil {
		return nil, apperror.ErrInvariantViolation(err)
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, userID, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			// Duplicate reference: the concurrent holder wins, our reservation
			// rolls back untouched.
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("reference", reference).
		Str("user_id", userID.String()).
		Str("amount", amount.String()).
		Str("category", string(category)).
		Msg("debit reserved")

	return txn, nil
}

// FinalizeTransaction moves a pending entry to a terminal status. Failed
// finalization re-credits the held amount in the same database transaction.
// An already-terminal entry is returned unchanged, so retries and the
// reconciliation worker can finalize blindly.
func (s *LedgerServiceImpl) FinalizeTransaction(ctx context.Context, reference string, update ports.FinalizeUpdate) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := s.txRepo.GetByReferenceForUpdate(ctx, dbTx, reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	if txn.IsTerminal() {
		return txn, nil
	}
	if err := txn.CheckBalanceDelta(); err != nil {
		// The stored entry no longer accounts for its own amount. Refuse to
		// settle it and leave it for manual review.
		return nil, apperror.ErrInvariantViolation(err)
	}

	if update.Status == domain.TransactionStatusFailed && txn.Direction == domain.DirectionDebit {
		// Return the held funds before writing the terminal status.
		wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, txn.UserID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if wallet == nil {
			return nil, apperror.ErrNotFound("wallet")
		}
		if err := s.walletRepo.UpdateBalance(ctx, dbTx, txn.UserID, wallet.Balance.Add(txn.Amount)); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("re-credit balance: %w", err))
		}
	}

	if err := s.txRepo.Finalize(ctx, dbTx, reference, update); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	txn.Status = update.Status
	if update.ProviderReference != nil {
		txn.ProviderReference = update.ProviderReference
	}
	if update.ProviderPayload != nil {
		txn.ProviderPayload = update.ProviderPayload
	}
	txn.FailureReason = update.FailureReason
	txn.UpdatedAt = time.Now().UTC()

	s.log.Info().
		Str("reference", reference).
		Str("status", string(update.Status)).
		Msg("transaction finalized")

	return txn, nil
}

// Credit records an immediately successful credit: wallet funding, refunds
// and referral bonuses. The unique reference index gives replayed webhook
// deliveries and retried refunds the same duplicate protection as debits.
func (s *LedgerServiceImpl) Credit(ctx context.Context, req ports.CreditRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	newBalance := wallet.Balance.Add(req.Amount)
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:                uuid.New(),
		Reference:         req.Reference,
		UserID:            req.UserID,
		Direction:         domain.DirectionCredit,
		Amount:            req.Amount,
		BalanceBefore:     wallet.Balance,
		BalanceAfter:      newBalance,
		Category:          req.Category,
		Status:            domain.TransactionStatusSuccess,
		OriginalReference: req.OriginalReference,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := txn.CheckBalanceDelta(); err != nil {
		return nil, apperror.ErrInvariantViolation(err)
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, req.UserID, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("reference", req.Reference).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Str("category", string(req.Category)).
		Msg("credit recorded")

	return txn, nil
}

// AttachProviderResult persists the provider snapshot on a pending entry
// after an indeterminate call, without touching status or balance.
func (s *LedgerServiceImpl) AttachProviderResult(ctx context.Context, reference string, result *domain.ProviderResult) error {
	var providerRef *string
	if result.ProviderReference != "" {
		providerRef = &result.ProviderReference
	}
	if err := s.txRepo.AttachProviderResult(ctx, reference, providerRef, result.RawPayload); err != nil {
		return apperror.InternalError(fmt.Errorf("attach provider result: %w", err))
	}
	return nil
}
