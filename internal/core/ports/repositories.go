package ports

import (
	"context"
	"encoding/json"
	"time"

	"kobopay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for
// pessimistic locking; the row lock is the serialization point for all
// balance mutations of a user, which holds across server instances.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, balance decimal.Decimal) error
}

// TransactionRepository defines persistence operations for ledger entries.
type TransactionRepository interface {
	// Create inserts a ledger entry within a database transaction. A unique
	// index on reference is the authoritative idempotency guard; a violation
	// surfaces as apperror.ErrDuplicateReference.
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error)
	// Finalize writes the terminal status and provider snapshot. Must run in
	// the same database transaction as any balance reversal.
	Finalize(ctx context.Context, tx pgx.Tx, reference string, update FinalizeUpdate) error
	// AttachProviderResult records the provider snapshot on a still-pending
	// entry (indeterminate outcome), without touching status or balance.
	AttachProviderResult(ctx context.Context, reference string, providerRef *string, payload json.RawMessage) error
	RefundExists(ctx context.Context, originalReference string) (bool, error)
	// Reconciliation + reporting queries
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error)
	MarkForReview(ctx context.Context, reference string) error
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	Aggregate(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]LedgerAggregate, error)
	// BalanceFromLedger recomputes the wallet balance implied by the ledger:
	// successful credits minus successful debits minus held (pending) debits.
	BalanceFromLedger(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

// FinalizeUpdate carries the terminal fields written by Finalize.
type FinalizeUpdate struct {
	Status            domain.TransactionStatus
	ProviderReference *string
	ProviderPayload   json.RawMessage
	FailureReason     *string
}

// TransactionListParams holds filter + pagination for listing ledger entries.
type TransactionListParams struct {
	UserID    uuid.UUID
	Status    *domain.TransactionStatus
	Category  *domain.Category
	Direction *domain.Direction
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// LedgerAggregate is one row of per-category/per-status sums and counts.
type LedgerAggregate struct {
	Category domain.Category
	Status   domain.TransactionStatus
	Count    int64
	Total    decimal.Decimal
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
