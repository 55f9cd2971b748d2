package handler

import (
	"net/http"

	"kobopay/internal/adapter/http/dto"
	"kobopay/internal/core/ports"
	"kobopay/pkg/apperror"
	"kobopay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler handles inbound provider webhooks.
type WebhookHandler struct {
	purchaseSvc ports.PurchaseService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(purchaseSvc ports.PurchaseService) *WebhookHandler {
	return &WebhookHandler{purchaseSvc: purchaseSvc}
}

// Funding handles POST /webhooks/funding. The checkout provider posts here
// after confirming a top-up; the signature middleware has already verified
// the body. Replays credit once: the provider reference is the idempotency
// key, so a duplicate delivery gets the original entry back with 200.
func (h *WebhookHandler) Funding(c *gin.Context) {
	var req dto.FundingWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.Error(c, apperror.Validation("user_id must be a UUID"))
		return
	}

	result, err := h.purchaseSvc.FundWallet(c.Request.Context(), ports.FundingRequest{
		UserID:            userID,
		Amount:            req.Amount,
		ProviderReference: req.ProviderReference,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(result))
}

// HealthCheck handles GET /health. It pings every registered dependency.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
