package handler

import (
	"time"

	"kobopay/internal/adapter/http/dto"
	"kobopay/internal/adapter/http/middleware"
	"kobopay/internal/core/ports"
	"kobopay/pkg/apperror"
	"kobopay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet query endpoints.
type WalletHandler struct {
	reportingSvc ports.ReportingService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(reportingSvc ports.ReportingService) *WalletHandler {
	return &WalletHandler{reportingSvc: reportingSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	balance, err := h.reportingSvc.GetBalance(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{Balance: balance.String()})
}

// GetStats handles GET /api/v1/wallet/stats.
func (h *WalletHandler) GetStats(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	from := parseTimeQuery(c, "from")
	to := parseTimeQuery(c, "to")

	rows, err := h.reportingSvc.GetStats(c.Request.Context(), userID.(uuid.UUID), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.StatsRow, 0, len(rows))
	for _, r := range rows {
		items = append(items, dto.StatsRow{
			Category: string(r.Category),
			Status:   string(r.Status),
			Count:    r.Count,
			Total:    r.Total.String(),
		})
	}

	response.OK(c, dto.StatsResponse{Items: items})
}

// AuditLedger handles GET /api/v1/wallet/audit. It checks conservation:
// the stored balance against the balance implied by the ledger.
func (h *WalletHandler) AuditLedger(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	if err := h.reportingSvc.VerifyWalletLedger(c.Request.Context(), userID.(uuid.UUID)); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LedgerAuditResponse{Balanced: true})
}

// parseTimeQuery reads an RFC 3339 query parameter, nil when absent or
// malformed.
func parseTimeQuery(c *gin.Context, name string) *time.Time {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
