package integration

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"kobopay/internal/core/domain"
	"kobopay/internal/core/ports"
	"kobopay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// The in-memory storage mirrors what PostgreSQL gives the ledger: a global
// write lock standing in for SELECT FOR UPDATE, a unique reference index,
// and rollback of everything written under an uncommitted transaction.
// Without those three, the concurrency scenarios below would not mean
// anything.

// --- Transactor with a real lock and undo log ---

type lockingTransactor struct {
	mu sync.Mutex
}

func newLockingTransactor() *lockingTransactor {
	return &lockingTransactor{}
}

func (t *lockingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{mu: &t.mu}, nil
}

// memTx serializes ledger transactions and rolls back repo writes made
// under it. Repos append undo closures as they mutate state.
type memTx struct {
	mu   *sync.Mutex
	undo []func()
	done bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.undo = nil
	t.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.mu.Unlock()
	return nil
}

func (t *memTx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func registerUndo(tx pgx.Tx, fn func()) {
	if m, ok := tx.(*memTx); ok {
		m.onRollback(fn)
	}
}

// Unused pgx.Tx surface.
func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                               { return nil }

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.UserID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return apperror.ErrNotFound("wallet")
	}
	prev := w.Balance
	registerUndo(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		w.Balance = prev
	})
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu      sync.RWMutex
	entries map[string]*domain.Transaction // keyed by reference, the unique index
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{entries: make(map[string]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[t.Reference]; exists {
		return apperror.ErrDuplicateReference()
	}
	cp := *t
	r.entries[t.Reference] = &cp
	registerUndo(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.entries, t.Reference)
	})
	return nil
}

func (r *inMemoryTransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.entries[reference]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	return r.GetByReference(ctx, reference)
}

func (r *inMemoryTransactionRepo) Finalize(ctx context.Context, tx pgx.Tx, reference string, update ports.FinalizeUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.entries[reference]
	if !ok {
		return apperror.ErrNotFound("transaction")
	}
	if t.IsTerminal() {
		return apperror.ErrTransactionFinalized()
	}
	prev := *t
	registerUndo(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		*t = prev
	})
	t.Status = update.Status
	if update.ProviderReference != nil {
		t.ProviderReference = update.ProviderReference
	}
	if update.ProviderPayload != nil {
		t.ProviderPayload = update.ProviderPayload
	}
	t.FailureReason = update.FailureReason
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryTransactionRepo) AttachProviderResult(ctx context.Context, reference string, providerRef *string, payload json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.entries[reference]
	if !ok {
		return apperror.ErrNotFound("transaction")
	}
	if providerRef != nil {
		t.ProviderReference = providerRef
	}
	if payload != nil {
		t.ProviderPayload = payload
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryTransactionRepo) RefundExists(ctx context.Context, originalReference string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.entries {
		if t.OriginalReference != nil && *t.OriginalReference == originalReference {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemoryTransactionRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.entries {
		if t.Status == domain.TransactionStatusPending && !t.NeedsReview && t.CreatedAt.Before(cutoff) {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *inMemoryTransactionRepo) MarkForReview(ctx context.Context, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.entries[reference]
	if !ok {
		return apperror.ErrNotFound("transaction")
	}
	t.NeedsReview = true
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.entries {
		if t.UserID != params.UserID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Category != nil && t.Category != *params.Category {
			continue
		}
		if params.Direction != nil && t.Direction != *params.Direction {
			continue
		}
		if params.From != nil && t.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && t.CreatedAt.After(*params.To) {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryTransactionRepo) Aggregate(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]ports.LedgerAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type key struct {
		category domain.Category
		status   domain.TransactionStatus
	}
	agg := make(map[key]*ports.LedgerAggregate)
	for _, t := range r.entries {
		if t.UserID != userID {
			continue
		}
		if from != nil && t.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && t.CreatedAt.After(*to) {
			continue
		}
		k := key{t.Category, t.Status}
		row, ok := agg[k]
		if !ok {
			row = &ports.LedgerAggregate{Category: t.Category, Status: t.Status, Total: decimal.Zero}
			agg[k] = row
		}
		row.Count++
		row.Total = row.Total.Add(t.Amount)
	}
	result := make([]ports.LedgerAggregate, 0, len(agg))
	for _, row := range agg {
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Status < result[j].Status
	})
	return result, nil
}

func (r *inMemoryTransactionRepo) BalanceFromLedger(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	balance := decimal.Zero
	for _, t := range r.entries {
		if t.UserID != userID {
			continue
		}
		switch {
		case t.Direction == domain.DirectionCredit && t.Status == domain.TransactionStatusSuccess:
			balance = balance.Add(t.Amount)
		case t.Direction == domain.DirectionDebit && t.Status == domain.TransactionStatusSuccess:
			balance = balance.Sub(t.Amount)
		case t.Direction == domain.DirectionDebit && t.Status == domain.TransactionStatusPending:
			// Held funds count against the balance until reconciled.
			balance = balance.Sub(t.Amount)
		}
	}
	return balance, nil
}

// --- Programmable fake provider gateway ---

// fakeGateway answers Call and Requery per reference. References without a
// programmed result get a confirmed success.
type fakeGateway struct {
	mu      sync.Mutex
	calls   map[string]*domain.ProviderResult
	requery map[string]*domain.ProviderResult
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls:   make(map[string]*domain.ProviderResult),
		requery: make(map[string]*domain.ProviderResult),
	}
}

func (g *fakeGateway) onCall(reference string, result *domain.ProviderResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[reference] = result
}

func (g *fakeGateway) onRequery(reference string, result *domain.ProviderResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requery[reference] = result
}

func (g *fakeGateway) Supports(category domain.Category) bool {
	return category.IsPurchase()
}

func (g *fakeGateway) Call(ctx context.Context, category domain.Category, reference string, payload map[string]string) (*domain.ProviderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if result, ok := g.calls[reference]; ok {
		return result, nil
	}
	return confirmedSuccess(reference), nil
}

func (g *fakeGateway) Requery(ctx context.Context, txn *domain.Transaction) (*domain.ProviderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if result, ok := g.requery[txn.Reference]; ok {
		return result, nil
	}
	return indeterminate(), nil
}

func confirmedSuccess(reference string) *domain.ProviderResult {
	return &domain.ProviderResult{
		Outcome:           domain.OutcomeConfirmedSuccess,
		ProviderReference: "PRV-" + reference,
		RawPayload:        json.RawMessage(`{"code":"000"}`),
	}
}

func confirmedFailure(reason string) *domain.ProviderResult {
	return &domain.ProviderResult{
		Outcome:       domain.OutcomeConfirmedFailure,
		FailureReason: reason,
		RawPayload:    json.RawMessage(`{"code":"016"}`),
	}
}

func indeterminate() *domain.ProviderResult {
	return &domain.ProviderResult{Outcome: domain.OutcomeIndeterminate}
}
