package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"kobopay/internal/core/domain"
	"kobopay/internal/core/ports"
	"kobopay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, reference, user_id, direction, amount, balance_before, balance_after,
		category, status, provider_reference, provider_payload, failure_reason, original_reference,
		needs_review, created_at, updated_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a ledger entry within a database transaction. A retried
// reference hits the unique index and comes back as ErrDuplicateReference.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, reference, user_id, direction, amount, balance_before, balance_after,
		category, status, provider_reference, provider_payload, failure_reason, original_reference,
		needs_review, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.Reference, t.UserID, t.Direction,
		t.Amount, t.BalanceBefore, t.BalanceAfter,
		t.Category, t.Status, t.ProviderReference, t.ProviderPayload,
		t.FailureReason, t.OriginalReference, t.NeedsReview,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDuplicateReference()
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByReference fetches a ledger entry by its idempotency reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`

	return scanTransaction(r.pool.QueryRow(ctx, query, reference))
}

// GetByReferenceForUpdate fetches a ledger entry with a row lock, so two
// concurrent finalizations of the same reference serialize.
func (r *TransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1 FOR UPDATE`

	return scanTransaction(tx.QueryRow(ctx, query, reference))
}

// Finalize writes the terminal status and provider snapshot. The WHERE
// clause only matches pending rows, so a terminal entry is never rewritten.
func (r *TransactionRepo) Finalize(ctx context.Context, tx pgx.Tx, reference string, update ports.FinalizeUpdate) error {
	query := `UPDATE transactions
		SET status = $1, provider_reference = COALESCE($2, provider_reference),
			provider_payload = COALESCE($3, provider_payload), failure_reason = $4, updated_at = $5
		WHERE reference = $6 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query,
		update.Status, update.ProviderReference, update.ProviderPayload,
		update.FailureReason, time.Now().UTC(), reference,
	)
	if err != nil {
		return fmt.Errorf("finalize transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrTransactionFinalized()
	}
	return nil
}

// AttachProviderResult stores the raw provider snapshot on a pending entry.
func (r *TransactionRepo) AttachProviderResult(ctx context.Context, reference string, providerRef *string, payload json.RawMessage) error {
	query := `UPDATE transactions
		SET provider_reference = COALESCE($1, provider_reference),
			provider_payload = COALESCE($2, provider_payload), updated_at = $3
		WHERE reference = $4 AND status = 'PENDING'`

	_, err := r.pool.Exec(ctx, query, providerRef, payload, time.Now().UTC(), reference)
	if err != nil {
		return fmt.Errorf("attach provider result: %w", err)
	}
	return nil
}

// RefundExists checks whether a non-failed refund already references the
// original transaction.
func (r *TransactionRepo) RefundExists(ctx context.Context, originalReference string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions
		WHERE original_reference = $1 AND direction = 'CREDIT' AND status != 'FAILED')`

	var exists bool
	err := r.pool.QueryRow(ctx, query, originalReference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check refund exists: %w", err)
	}
	return exists, nil
}

// ListPendingBefore returns pending entries created before cutoff, oldest
// first, excluding entries already flagged for manual review.
func (r *TransactionRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = 'PENDING' AND needs_review = false AND created_at < $1
		ORDER BY created_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// MarkForReview flags a pending entry for manual reconciliation.
func (r *TransactionRepo) MarkForReview(ctx context.Context, reference string) error {
	query := `UPDATE transactions SET needs_review = true, updated_at = $1
		WHERE reference = $2 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), reference)
	if err != nil {
		return fmt.Errorf("mark transaction for review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrNotFound("pending transaction")
	}
	return nil
}

// List fetches ledger entries with filtering and pagination.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
	args = append(args, params.UserID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, *params.Category)
		argIdx++
	}
	if params.Direction != nil {
		conditions = append(conditions, fmt.Sprintf("direction = $%d", argIdx))
		args = append(args, *params.Direction)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// Aggregate returns per-category/per-status counts and sums, optionally
// restricted to a time window.
func (r *TransactionRepo) Aggregate(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]ports.LedgerAggregate, error) {
	var args []any
	argIdx := 1

	condition := fmt.Sprintf("user_id = $%d", argIdx)
	args = append(args, userID)
	argIdx++

	if from != nil {
		condition += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		condition += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *to)
	}

	query := fmt.Sprintf(`SELECT category, status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions WHERE %s
		GROUP BY category, status ORDER BY category, status`, condition)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}
	defer rows.Close()

	var aggs []ports.LedgerAggregate
	for rows.Next() {
		var a ports.LedgerAggregate
		if err := rows.Scan(&a.Category, &a.Status, &a.Count, &a.Total); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return aggs, nil
}

// BalanceFromLedger recomputes the balance implied by the ledger:
// successful credits minus successful debits minus held pending debits.
func (r *TransactionRepo) BalanceFromLedger(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT
		COALESCE(SUM(amount) FILTER (WHERE direction = 'CREDIT' AND status = 'SUCCESS'), 0)
		- COALESCE(SUM(amount) FILTER (WHERE direction = 'DEBIT' AND status = 'SUCCESS'), 0)
		- COALESCE(SUM(amount) FILTER (WHERE direction = 'DEBIT' AND status = 'PENDING'), 0)
		FROM transactions WHERE user_id = $1`

	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, query, userID).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger balance: %w", err)
	}
	return balance, nil
}

// scanTransaction is a helper to scan a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.Reference, &t.UserID, &t.Direction,
		&t.Amount, &t.BalanceBefore, &t.BalanceAfter,
		&t.Category, &t.Status, &t.ProviderReference, &t.ProviderPayload,
		&t.FailureReason, &t.OriginalReference, &t.NeedsReview,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		err := rows.Scan(
			&t.ID, &t.Reference, &t.UserID, &t.Direction,
			&t.Amount, &t.BalanceBefore, &t.BalanceAfter,
			&t.Category, &t.Status, &t.ProviderReference, &t.ProviderPayload,
			&t.FailureReason, &t.OriginalReference, &t.NeedsReview,
			&t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}
