package handler

import (
	"kobopay/internal/adapter/http/dto"
	"kobopay/internal/adapter/http/middleware"
	"kobopay/internal/core/domain"
	"kobopay/internal/core/ports"
	"kobopay/pkg/apperror"
	"kobopay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PurchaseHandler handles money-moving endpoints.
type PurchaseHandler struct {
	purchaseSvc ports.PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(purchaseSvc ports.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchaseSvc: purchaseSvc}
}

// Purchase handles POST /api/v1/purchases.
func (h *PurchaseHandler) Purchase(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.purchaseSvc.Purchase(c.Request.Context(), ports.PurchaseRequest{
		UserID:    userID.(uuid.UUID),
		Category:  domain.Category(req.Category),
		Amount:    req.Amount,
		Pin:       req.Pin,
		Payload:   req.Payload,
		Reference: req.Reference,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.PurchaseResponse{
		Status:      string(result.Status),
		Transaction: toTransactionResponse(result.Transaction),
	}

	// Pending means the provider did not confirm either way; the entry is
	// picked up by reconciliation and the caller polls by reference.
	if result.Status == domain.TransactionStatusPending {
		response.Accepted(c, resp)
		return
	}
	response.Created(c, resp)
}

// Refund handles POST /api/v1/wallet/refunds.
func (h *PurchaseHandler) Refund(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.purchaseSvc.Refund(c.Request.Context(), ports.RefundRequest{
		UserID:            userID.(uuid.UUID),
		OriginalReference: req.OriginalReference,
		Amount:            req.Amount,
		Reason:            req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(result))
}

// CreditBonus handles POST /api/v1/wallet/bonus.
func (h *PurchaseHandler) CreditBonus(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.BonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.purchaseSvc.CreditBonus(c.Request.Context(), ports.BonusRequest{
		UserID: userID.(uuid.UUID),
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(result))
}

// toTransactionResponse converts domain.Transaction to DTO.
func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		ID:                tx.ID.String(),
		Reference:         tx.Reference,
		Direction:         string(tx.Direction),
		Amount:            tx.Amount.String(),
		BalanceBefore:     tx.BalanceBefore.String(),
		BalanceAfter:      tx.BalanceAfter.String(),
		Category:          string(tx.Category),
		Status:            string(tx.Status),
		ProviderReference: tx.ProviderReference,
		FailureReason:     tx.FailureReason,
		OriginalReference: tx.OriginalReference,
		NeedsReview:       tx.NeedsReview,
		CreatedAt:         tx.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:         tx.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
