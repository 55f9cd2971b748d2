package service

import (
	"context"
	"errors"
	"testing"

	"kobopay/internal/core/domain"
	"kobopay/internal/core/ports"
	"kobopay/internal/core/ports/mocks"
	"kobopay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc        *LedgerServiceImpl
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerService(d.walletRepo, d.txRepo, d.transactor, zerolog.Nop())
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

// decimalMatcher compares decimals by value. gomock's default deep-equal
// distinguishes representations of the same number, so a computed zero
// would not match decimal.Zero.
type decimalMatcher struct{ want decimal.Decimal }

func (m decimalMatcher) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string { return "decimal " + m.want.String() }

func decimalEq(v int64) gomock.Matcher { return decimalMatcher{want: decimal.NewFromInt(v)} }

// ==================== ReserveDebit Tests ====================

func TestLedgerService_ReserveDebit_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(1000),
	}, nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, userID, decimalEq(700)).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			assert.Equal(t, domain.DirectionDebit, txn.Direction)
			assert.Equal(t, domain.TransactionStatusPending, txn.Status)
			assert.True(t, txn.BalanceBefore.Equal(decimal.NewFromInt(1000)))
			assert.True(t, txn.BalanceAfter.Equal(decimal.NewFromInt(700)))
			return nil
		})

	txn, err := d.svc.ReserveDebit(ctx, userID, decimal.NewFromInt(300), "AIR-REF-1", domain.CategoryAirtime)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, "AIR-REF-1", txn.Reference)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
}

func TestLedgerService_ReserveDebit_InsufficientFunds(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(100),
	}, nil)

	txn, err := d.svc.ReserveDebit(ctx, userID, decimal.NewFromInt(300), "AIR-REF-2", domain.CategoryAirtime)
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_001")
}

func TestLedgerService_ReserveDebit_ExactBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(300),
	}, nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, userID, decimalEq(0)).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	txn, err := d.svc.ReserveDebit(ctx, userID, decimal.NewFromInt(300), "AIR-REF-3", domain.CategoryAirtime)
	require.NoError(t, err)
	assert.True(t, txn.BalanceAfter.IsZero(), "debiting the full balance must leave exactly zero")
}

func TestLedgerService_ReserveDebit_InvalidAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-50)} {
		txn, err := d.svc.ReserveDebit(context.Background(), uuid.New(), amount, "AIR-REF-4", domain.CategoryAirtime)
		assert.Nil(t, txn)
		assertAppError(t, err, "LED_004")
	}
}

func TestLedgerService_ReserveDebit_WalletNotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(nil, nil)

	txn, err := d.svc.ReserveDebit(ctx, userID, decimal.NewFromInt(300), "AIR-REF-5", domain.CategoryAirtime)
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_006")
}

func TestLedgerService_ReserveDebit_DuplicateReference(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(1000),
	}, nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, userID, gomock.Any()).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(apperror.ErrDuplicateReference())

	txn, err := d.svc.ReserveDebit(ctx, userID, decimal.NewFromInt(300), "AIR-REF-6", domain.CategoryAirtime)
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_002")
}

// ==================== FinalizeTransaction Tests ====================

func TestLedgerService_FinalizeTransaction_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	providerRef := "prov-1"

	pending := &domain.Transaction{
		Reference:     "AIR-REF-7",
		UserID:        userID,
		Direction:     domain.DirectionDebit,
		Amount:        decimal.NewFromInt(300),
		BalanceBefore: decimal.NewFromInt(1000),
		BalanceAfter:  decimal.NewFromInt(700),
		Status:        domain.TransactionStatusPending,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "AIR-REF-7").Return(pending, nil)
	d.txRepo.EXPECT().Finalize(ctx, tx, "AIR-REF-7", gomock.Any()).Return(nil)

	txn, err := d.svc.FinalizeTransaction(ctx, "AIR-REF-7", ports.FinalizeUpdate{
		Status:            domain.TransactionStatusSuccess,
		ProviderReference: &providerRef,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
	assert.Equal(t, &providerRef, txn.ProviderReference)
}

func TestLedgerService_FinalizeTransaction_FailedRecreditsAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	reason := "TRANSACTION FAILED"

	pending := &domain.Transaction{
		Reference:     "AIR-REF-8",
		UserID:        userID,
		Direction:     domain.DirectionDebit,
		Amount:        decimal.NewFromInt(300),
		BalanceBefore: decimal.NewFromInt(1000),
		BalanceAfter:  decimal.NewFromInt(700),
		Status:        domain.TransactionStatusPending,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "AIR-REF-8").Return(pending, nil)
	// Balance after the reservation was 700; the failed finalization puts
	// the 300 back in the same database transaction.
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(700),
	}, nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, userID, decimalEq(1000)).Return(nil)
	d.txRepo.EXPECT().Finalize(ctx, tx, "AIR-REF-8", gomock.Any()).Return(nil)

	txn, err := d.svc.FinalizeTransaction(ctx, "AIR-REF-8", ports.FinalizeUpdate{
		Status:        domain.TransactionStatusFailed,
		FailureReason: &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
}

func TestLedgerService_FinalizeTransaction_AlreadyTerminal(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	settled := &domain.Transaction{
		Reference: "AIR-REF-9",
		Direction: domain.DirectionDebit,
		Amount:    decimal.NewFromInt(300),
		Status:    domain.TransactionStatusSuccess,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "AIR-REF-9").Return(settled, nil)
	// No Finalize, no balance mutation: the stored entry wins.

	txn, err := d.svc.FinalizeTransaction(ctx, "AIR-REF-9", ports.FinalizeUpdate{
		Status: domain.TransactionStatusFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status, "terminal entries are returned unchanged")
}

func TestLedgerService_FinalizeTransaction_NotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "MISSING").Return(nil, nil)

	txn, err := d.svc.FinalizeTransaction(ctx, "MISSING", ports.FinalizeUpdate{
		Status: domain.TransactionStatusSuccess,
	})
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_006")
}

func TestLedgerService_FinalizeTransaction_CorruptSnapshotsRefused(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	// Snapshots that do not account for the amount mean the stored entry
	// is corrupt; settling it would bake the corruption in.
	pending := &domain.Transaction{
		Reference:     "AIR-REF-12",
		UserID:        uuid.New(),
		Direction:     domain.DirectionDebit,
		Amount:        decimal.NewFromInt(300),
		BalanceBefore: decimal.NewFromInt(1000),
		BalanceAfter:  decimal.NewFromInt(900),
		Status:        domain.TransactionStatusPending,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "AIR-REF-12").Return(pending, nil)

	txn, err := d.svc.FinalizeTransaction(ctx, "AIR-REF-12", ports.FinalizeUpdate{
		Status: domain.TransactionStatusSuccess,
	})
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_003")
}

// ==================== Credit Tests ====================

func TestLedgerService_Credit_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(500),
	}, nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, userID, decimalEq(700)).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			assert.Equal(t, domain.DirectionCredit, txn.Direction)
			assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
			return nil
		})

	txn, err := d.svc.Credit(ctx, ports.CreditRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(200),
		Reference: "BNS-REF-1",
		Category:  domain.CategoryReferralBonus,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
	assert.True(t, txn.BalanceAfter.Equal(decimal.NewFromInt(700)))
}

func TestLedgerService_Credit_DuplicateReference(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(500),
	}, nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, userID, gomock.Any()).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(apperror.ErrDuplicateReference())

	txn, err := d.svc.Credit(ctx, ports.CreditRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(200),
		Reference: "FND-REF-1",
		Category:  domain.CategoryWalletFunding,
	})
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_002")
}

func TestLedgerService_Credit_InvalidAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	txn, err := d.svc.Credit(context.Background(), ports.CreditRequest{
		UserID:    uuid.New(),
		Amount:    decimal.NewFromInt(-10),
		Reference: "BNS-REF-2",
		Category:  domain.CategoryReferralBonus,
	})
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_004")
}

// ==================== AttachProviderResult Tests ====================

func TestLedgerService_AttachProviderResult(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()

	d.txRepo.EXPECT().AttachProviderResult(ctx, "AIR-REF-10", gomock.Any(), gomock.Any()).Return(nil)

	err := d.svc.AttachProviderResult(ctx, "AIR-REF-10", &domain.ProviderResult{
		Outcome:           domain.OutcomeIndeterminate,
		ProviderReference: "prov-5",
		RawPayload:        []byte(`{"code":"099"}`),
	})
	assert.NoError(t, err)
}

func TestLedgerService_AttachProviderResult_RepoError(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()

	d.txRepo.EXPECT().AttachProviderResult(ctx, "AIR-REF-11", gomock.Any(), gomock.Any()).
		Return(errors.New("connection refused"))

	err := d.svc.AttachProviderResult(ctx, "AIR-REF-11", &domain.ProviderResult{
		Outcome: domain.OutcomeIndeterminate,
	})
	assertAppError(t, err, "SYS_001")
}
