package ports

import (
	"context"
	"time"

	"kobopay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerService is the Balance Mutator: the only code path allowed to
// change a wallet balance. Every mutation is paired with a ledger write in
// the same database transaction.
type LedgerService interface {
	// ReserveDebit atomically checks funds, decrements the balance and
	// inserts a pending debit entry under reference.
	ReserveDebit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string, category domain.Category) (*domain.Transaction, error)
	// FinalizeTransaction is the only path from pending to a terminal
	// status. Finalizing as failed re-credits the reserved amount in the
	// same atomic unit. Finalizing an already-terminal entry returns it
	// unchanged.
	FinalizeTransaction(ctx context.Context, reference string, outcome FinalizeUpdate) (*domain.Transaction, error)
	// Credit records an immediately successful credit (funding, refunds,
	// bonuses) with the same duplicate-reference protection.
	Credit(ctx context.Context, req CreditRequest) (*domain.Transaction, error)
	// AttachProviderResult persists the raw provider snapshot on a pending
	// entry after an indeterminate call.
	AttachProviderResult(ctx context.Context, reference string, result *domain.ProviderResult) error
}

// CreditRequest holds validated input for a credit.
type CreditRequest struct {
	UserID            uuid.UUID
	Amount            decimal.Decimal
	Reference         string
	Category          domain.Category
	OriginalReference *string // set when the credit reverses a prior debit
}

// ProviderGateway abstracts outbound calls to bill-payment and
// identity-verification providers. Classification into the tri-state
// outcome happens inside the gateway, never in callers.
type ProviderGateway interface {
	// Supports reports whether a client exists for the category. Checked
	// before any money is reserved for a purchase in that category.
	Supports(category domain.Category) bool
	Call(ctx context.Context, category domain.Category, reference string, payload map[string]string) (*domain.ProviderResult, error)
	// Requery asks the provider for the current status of a previously
	// submitted request, by our reference and, when known, theirs.
	Requery(ctx context.Context, txn *domain.Transaction) (*domain.ProviderResult, error)
}

// PurchaseService is the use-case layer composing reference generation,
// the Balance Mutator and the Provider Gateway.
type PurchaseService interface {
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	Refund(ctx context.Context, req RefundRequest) (*domain.Transaction, error)
	CreditBonus(ctx context.Context, req BonusRequest) (*domain.Transaction, error)
	FundWallet(ctx context.Context, req FundingRequest) (*domain.Transaction, error)
}

// PurchaseRequest holds validated input for a provider-backed purchase.
// Category is explicit and never inferred from the payload.
type PurchaseRequest struct {
	UserID    uuid.UUID
	Category  domain.Category
	Amount    decimal.Decimal
	Pin       string
	Payload   map[string]string // category-specific fields (phone, meter number, NIN, ...)
	Reference string            // optional client-supplied idempotency key
}

// PurchaseResult is what the caller sees. Status pending means the provider
// did not confirm either way and reconciliation will resolve the entry.
type PurchaseResult struct {
	Status      domain.TransactionStatus
	Transaction *domain.Transaction
}

// RefundRequest holds validated input for refunding a successful debit.
type RefundRequest struct {
	UserID            uuid.UUID
	OriginalReference string
	Amount            *decimal.Decimal // nil = full refund
	Reason            string
}

// BonusRequest holds validated input for a referral bonus credit.
type BonusRequest struct {
	UserID uuid.UUID
	Amount decimal.Decimal
	Reason string
}

// FundingRequest credits a wallet after the checkout provider confirmed a
// top-up. ProviderReference doubles as the idempotency key so replayed
// webhooks credit once.
type FundingRequest struct {
	UserID            uuid.UUID
	Amount            decimal.Decimal
	ProviderReference string
}

// ReportingService exposes the ledger query surface.
type ReportingService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	GetTransaction(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]LedgerAggregate, error)
	// VerifyWalletLedger checks conservation: the stored balance must equal
	// the balance implied by the ledger. A mismatch is an invariant
	// violation surfaced for manual reconciliation.
	VerifyWalletLedger(ctx context.Context, userID uuid.UUID) error
}

// ResultCache is the Redis fast path for idempotent retries of terminal
// results. The transaction store remains the source of truth.
type ResultCache interface {
	Get(ctx context.Context, reference string) ([]byte, error) // nil, nil on miss
	Set(ctx context.Context, reference string, value []byte, ttl time.Duration) error
}

// WorkerLock elects a single reconciliation runner per fleet.
type WorkerLock interface {
	// Acquire returns true when this instance holds the named lock.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// PinService hashes and verifies wallet PINs (Argon2id).
type PinService interface {
	Hash(pin string) (string, error)
	Verify(pin string, hash string) (bool, error)
}

// TokenService handles bearer token operations for user endpoints.
type TokenService interface {
	Generate(userID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed token claims.
type TokenClaims struct {
	UserID uuid.UUID
}
