package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kobopay/config"
	"kobopay/internal/core/domain"
	"kobopay/internal/core/ports"
	"kobopay/internal/metrics"
	"kobopay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const resultCacheTTL = 24 * time.Hour

// PurchaseServiceImpl implements ports.PurchaseService. It orchestrates a
// purchase end to end: validate, reserve the debit, call the provider,
// settle per the classified outcome. Money never moves outside the
// LedgerService; nothing here classifies provider replies.
type PurchaseServiceImpl struct {
	ledger      ports.LedgerService
	gateway     ports.ProviderGateway
	walletRepo  ports.WalletRepository
	txRepo      ports.TransactionRepository
	resultCache ports.ResultCache
	pinSvc      ports.PinService
	limits      config.LimitsConfig
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewPurchaseService creates a new PurchaseServiceImpl.
func NewPurchaseService(
	ledger ports.LedgerService,
	gateway ports.ProviderGateway,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	resultCache ports.ResultCache,
	pinSvc ports.PinService,
	limits config.LimitsConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *PurchaseServiceImpl {
	return &PurchaseServiceImpl{
		ledger:      ledger,
		gateway:     gateway,
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		resultCache: resultCache,
		pinSvc:      pinSvc,
		limits:      limits,
		metrics:     m,
		log:         log,
	}
}

// Purchase runs a provider-backed purchase. A retried reference returns the
// original result instead of a duplicate error; an unconfirmed provider
// reply leaves the entry pending with the funds held for reconciliation.
func (s *PurchaseServiceImpl) Purchase(ctx context.Context, req ports.PurchaseRequest) (*ports.PurchaseResult, error) {
	if !req.Category.IsPurchase() {
		return nil, apperror.ErrUnsupportedCategory(string(req.Category))
	}
	if err := s.checkAmountBounds(req.Category, req.Amount); err != nil {
		return nil, err
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	ok, err := s.pinSvc.Verify(req.Pin, wallet.PinHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("verify pin: %w", err))
	}
	if !ok {
		return nil, apperror.ErrInvalidPin()
	}

	reference := req.Reference
	if reference == "" {
		reference = domain.NewReference(req.Category)
	}

	// Idempotency fast path: terminal result cached in Redis. The key is
	// scoped to the user so one caller's reference never serves another's
	// result.
	if cached, err := s.resultCache.Get(ctx, resultCacheKey(req.UserID, reference)); err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("result cache check failed, falling through to DB")
	} else if cached != nil {
		return unmarshalCachedResult(cached)
	}

	// Source of truth: an existing ledger entry under this reference means
	// this is a retry and the caller gets the original outcome. A reference
	// already used by a different user is a plain conflict, never a window
	// into that user's ledger.
	if existing, err := s.txRepo.GetByReference(ctx, reference); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup reference: %w", err))
	} else if existing != nil {
		if existing.UserID != req.UserID {
			return nil, apperror.ErrDuplicateReference()
		}
		return &ports.PurchaseResult{Status: existing.Status, Transaction: existing}, nil
	}

	// No client for the category means no way to deliver and no way to
	// requery: refuse before any money is held.
	if !s.gateway.Supports(req.Category) {
		return nil, apperror.ErrUnsupportedCategory(string(req.Category))
	}

	txn, err := s.ledger.ReserveDebit(ctx, req.UserID, req.Amount, reference, req.Category)
	if err != nil {
		return s.recoverFromDuplicate(ctx, req.UserID, reference, err)
	}

	providerResult, err := s.gateway.Call(ctx, req.Category, reference, req.Payload)
	if err != nil {
		// The gateway only errors on caller mistakes; the money stays
		// reserved and reconciliation will escalate it rather than guess.
		s.log.Error().Err(err).Str("reference", reference).Msg("gateway rejected the call after reservation")
		s.metrics.PurchasesTotal.WithLabelValues(string(txn.Category), string(domain.TransactionStatusPending)).Inc()
		return &ports.PurchaseResult{Status: domain.TransactionStatusPending, Transaction: txn}, nil
	}

	return s.settle(ctx, txn, providerResult)
}

// settle applies a classified provider outcome to a pending entry.
func (s *PurchaseServiceImpl) settle(ctx context.Context, txn *domain.Transaction, result *domain.ProviderResult) (*ports.PurchaseResult, error) {
	switch result.Outcome {
	case domain.OutcomeConfirmedSuccess:
		finalized, err := s.ledger.FinalizeTransaction(ctx, txn.Reference, ports.FinalizeUpdate{
			Status:            domain.TransactionStatusSuccess,
			ProviderReference: optional(result.ProviderReference),
			ProviderPayload:   result.RawPayload,
		})
		if err != nil {
			return nil, err
		}
		s.metrics.PurchasesTotal.WithLabelValues(string(finalized.Category), string(finalized.Status)).Inc()
		s.cacheResult(ctx, finalized)
		return &ports.PurchaseResult{Status: finalized.Status, Transaction: finalized}, nil

	case domain.OutcomeConfirmedFailure:
		finalized, err := s.ledger.FinalizeTransaction(ctx, txn.Reference, ports.FinalizeUpdate{
			Status:            domain.TransactionStatusFailed,
			ProviderReference: optional(result.ProviderReference),
			ProviderPayload:   result.RawPayload,
			FailureReason:     optional(result.FailureReason),
		})
		if err != nil {
			return nil, err
		}
		s.metrics.PurchasesTotal.WithLabelValues(string(finalized.Category), string(finalized.Status)).Inc()
		s.cacheResult(ctx, finalized)
		return &ports.PurchaseResult{Status: finalized.Status, Transaction: finalized}, nil

	default:
		// Indeterminate: keep the hold, persist whatever the provider said,
		// let the reconciliation worker resolve it.
		if result.RawPayload != nil || result.ProviderReference != "" {
			if err := s.ledger.AttachProviderResult(ctx, txn.Reference, result); err != nil {
				s.log.Warn().Err(err).Str("reference", txn.Reference).Msg("failed to attach provider snapshot")
			}
		}
		s.log.Info().Str("reference", txn.Reference).Msg("provider outcome indeterminate, transaction stays pending")
		s.metrics.PurchasesTotal.WithLabelValues(string(txn.Category), string(domain.TransactionStatusPending)).Inc()
		return &ports.PurchaseResult{Status: domain.TransactionStatusPending, Transaction: txn}, nil
	}
}

// Refund credits back a successful debit of the same user. Partial amounts
// are allowed once; a second refund of the same original is rejected.
func (s *PurchaseServiceImpl) Refund(ctx context.Context, req ports.RefundRequest) (*domain.Transaction, error) {
	origTx, err := s.txRepo.GetByReference(ctx, req.OriginalReference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find original transaction: %w", err))
	}
	if origTx == nil || origTx.UserID != req.UserID {
		return nil, apperror.ErrNotFound("original transaction")
	}
	if !origTx.IsRefundable() {
		return nil, apperror.ErrNotRefundable()
	}

	refunded, err := s.txRepo.RefundExists(ctx, req.OriginalReference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check refund exists: %w", err))
	}
	if refunded {
		return nil, apperror.ErrAlreadyRefunded()
	}

	refundAmount := origTx.Amount
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, apperror.ErrInvalidAmount()
		}
		if req.Amount.GreaterThan(origTx.Amount) {
			return nil, apperror.ErrRefundAmountExceedsOriginal()
		}
		refundAmount = *req.Amount
	}

	txn, err := s.ledger.Credit(ctx, ports.CreditRequest{
		UserID:            req.UserID,
		Amount:            refundAmount,
		Reference:         domain.RefundReference(req.OriginalReference),
		Category:          origTx.Category.RefundCategory(),
		OriginalReference: &req.OriginalReference,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("reference", txn.Reference).
		Str("original_reference", req.OriginalReference).
		Str("reason", req.Reason).
		Msg("refund credited")

	return txn, nil
}

// CreditBonus records a referral bonus credit.
func (s *PurchaseServiceImpl) CreditBonus(ctx context.Context, req ports.BonusRequest) (*domain.Transaction, error) {
	txn, err := s.ledger.Credit(ctx, ports.CreditRequest{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Reference: domain.NewReference(domain.CategoryReferralBonus),
		Category:  domain.CategoryReferralBonus,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("reference", txn.Reference).
		Str("user_id", req.UserID.String()).
		Str("reason", req.Reason).
		Msg("referral bonus credited")

	return txn, nil
}

// FundWallet credits a confirmed top-up. The checkout provider's reference
// is the idempotency key, so a replayed webhook delivery credits once and
// gets the original entry back.
func (s *PurchaseServiceImpl) FundWallet(ctx context.Context, req ports.FundingRequest) (*domain.Transaction, error) {
	reference := "FND-" + req.ProviderReference

	txn, err := s.ledger.Credit(ctx, ports.CreditRequest{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Reference: reference,
		Category:  domain.CategoryWalletFunding,
	})
	if err != nil {
		if existing, lookupErr := s.txRepo.GetByReference(ctx, reference); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return txn, nil
}

// recoverFromDuplicate handles the race where two requests with one
// reference pass the lookup and both try to reserve: the loser reads the
// winner's entry and returns it, provided the winner is the same user.
func (s *PurchaseServiceImpl) recoverFromDuplicate(ctx context.Context, userID uuid.UUID, reference string, reserveErr error) (*ports.PurchaseResult, error) {
	var appErr *apperror.AppError
	if !errors.As(reserveErr, &appErr) || appErr.Code != apperror.CodeDuplicateReference {
		return nil, reserveErr
	}
	existing, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil || existing == nil {
		return nil, reserveErr
	}
	if existing.UserID != userID {
		return nil, reserveErr
	}
	return &ports.PurchaseResult{Status: existing.Status, Transaction: existing}, nil
}

func (s *PurchaseServiceImpl) checkAmountBounds(category domain.Category, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.ErrInvalidAmount()
	}
	lim := s.limits.Limit(string(category))
	if amount.LessThan(decimal.NewFromInt(lim.Min)) || amount.GreaterThan(decimal.NewFromInt(lim.Max)) {
		return apperror.ErrAmountOutOfRange(string(category))
	}
	return nil
}

// cacheResult stores a terminal result in Redis, best effort.
func (s *PurchaseServiceImpl) cacheResult(ctx context.Context, txn *domain.Transaction) {
	payload, err := json.Marshal(txn)
	if err != nil {
		return
	}
	if err := s.resultCache.Set(ctx, resultCacheKey(txn.UserID, txn.Reference), payload, resultCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("reference", txn.Reference).Msg("failed to cache terminal result")
	}
}

// resultCacheKey scopes a cached result to its owner.
func resultCacheKey(userID uuid.UUID, reference string) string {
	return userID.String() + ":" + reference
}

func unmarshalCachedResult(data []byte) (*ports.PurchaseResult, error) {
	var txn domain.Transaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached result: %w", err))
	}
	return &ports.PurchaseResult{Status: txn.Status, Transaction: &txn}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
