package service

import (
	"context"
	"testing"
	"time"

	"kobopay/internal/core/domain"
	"kobopay/internal/core/ports"
	"kobopay/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reportingTestDeps struct {
	svc        *ReportingServiceImpl
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	ctrl       *gomock.Controller
}

func setupReportingService(t *testing.T) *reportingTestDeps {
	ctrl := gomock.NewController(t)
	d := &reportingTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewReportingService(d.walletRepo, d.txRepo, zerolog.Nop())
	return d
}

func TestReportingService_GetBalance(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(750),
	}, nil)

	balance, err := d.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(750)))
}

func TestReportingService_GetBalance_WalletNotFound(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(nil, nil)

	_, err := d.svc.GetBalance(ctx, userID)
	assertAppError(t, err, "LED_006")
}

func TestReportingService_GetTransaction_OtherUsersEntryHidden(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()

	d.txRepo.EXPECT().GetByReference(ctx, "AIR-REF-1").Return(&domain.Transaction{
		Reference: "AIR-REF-1",
		UserID:    uuid.New(),
	}, nil)

	txn, err := d.svc.GetTransaction(ctx, uuid.New(), "AIR-REF-1")
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_006")
}

func TestReportingService_ListTransactions_ClampsPagination(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.txRepo.EXPECT().List(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			assert.Equal(t, 1, params.Page)
			assert.Equal(t, 20, params.PageSize)
			return nil, 0, nil
		})

	_, _, err := d.svc.ListTransactions(ctx, ports.TransactionListParams{
		UserID:   userID,
		Page:     0,
		PageSize: 500,
	})
	require.NoError(t, err)
}

func TestReportingService_GetStats(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	from := time.Now().Add(-24 * time.Hour)

	d.txRepo.EXPECT().Aggregate(ctx, userID, &from, nil).Return([]ports.LedgerAggregate{
		{Category: domain.CategoryAirtime, Status: domain.TransactionStatusSuccess, Count: 3, Total: decimal.NewFromInt(900)},
	}, nil)

	aggs, err := d.svc.GetStats(ctx, userID, &from, nil)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, int64(3), aggs[0].Count)
}

func TestReportingService_VerifyWalletLedger_Balanced(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(700),
	}, nil)
	d.txRepo.EXPECT().BalanceFromLedger(ctx, userID).Return(decimal.NewFromInt(700), nil)

	assert.NoError(t, d.svc.VerifyWalletLedger(ctx, userID))
}

func TestReportingService_VerifyWalletLedger_Diverged(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(&domain.Wallet{
		UserID:  userID,
		Balance: decimal.NewFromInt(700),
	}, nil)
	d.txRepo.EXPECT().BalanceFromLedger(ctx, userID).Return(decimal.NewFromInt(400), nil)

	err := d.svc.VerifyWalletLedger(ctx, userID)
	assertAppError(t, err, "LED_003")
}
