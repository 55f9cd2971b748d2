package dto

import "github.com/shopspring/decimal"

// PurchaseRequest is the request body for a provider-backed purchase.
// Category is explicit; the payload carries category-specific fields such as
// phone, meter_number or nin.
type PurchaseRequest struct {
	Category  string            `json:"category" binding:"required,oneof=airtime data electricity tv nin_verification bvn_verification transport_booking"`
	Amount    decimal.Decimal   `json:"amount" binding:"required"`
	Pin       string            `json:"pin" binding:"required,min=4,max=6"`
	Payload   map[string]string `json:"payload" binding:"required"`
	Reference string            `json:"reference" binding:"omitempty,safe_reference,max=64"`
}

// RefundRequest is the request body for refunding a delivered purchase.
// Amount omitted means a full refund.
type RefundRequest struct {
	OriginalReference string           `json:"original_reference" binding:"required,safe_reference,max=64"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	Reason            string           `json:"reason" binding:"required,max=255"`
}

// BonusRequest is the request body for crediting a referral bonus.
type BonusRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason" binding:"required,max=255"`
}

// FundingWebhookRequest is the body posted by the checkout provider after a
// confirmed wallet top-up. ProviderReference is the idempotency key.
type FundingWebhookRequest struct {
	UserID            string          `json:"user_id" binding:"required,uuid"`
	Amount            decimal.Decimal `json:"amount" binding:"required"`
	ProviderReference string          `json:"provider_reference" binding:"required,safe_reference,max=64"`
}

// TransactionResponse is the ledger entry as returned to clients.
type TransactionResponse struct {
	ID                string  `json:"id"`
	Reference         string  `json:"reference"`
	Direction         string  `json:"direction"`
	Amount            string  `json:"amount"`
	BalanceBefore     string  `json:"balance_before"`
	BalanceAfter      string  `json:"balance_after"`
	Category          string  `json:"category"`
	Status            string  `json:"status"`
	ProviderReference *string `json:"provider_reference,omitempty"`
	FailureReason     *string `json:"failure_reason,omitempty"`
	OriginalReference *string `json:"original_reference,omitempty"`
	NeedsReview       bool    `json:"needs_review"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// PurchaseResponse wraps the transaction with the outcome status. A pending
// status means the provider did not confirm either way; the caller polls
// GET /transactions/:reference.
type PurchaseResponse struct {
	Status      string              `json:"status"`
	Transaction TransactionResponse `json:"transaction"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	Balance string `json:"balance"`
}

// LedgerAuditResponse is the response for a conservation check.
type LedgerAuditResponse struct {
	Balanced bool `json:"balanced"`
}

// StatsRow is one per-category/per-status aggregate.
type StatsRow struct {
	Category string `json:"category"`
	Status   string `json:"status"`
	Count    int64  `json:"count"`
	Total    string `json:"total"`
}

// StatsResponse wraps the aggregate rows.
type StatsResponse struct {
	Items []StatsRow `json:"items"`
}

// TransactionListResponse wraps a paginated ledger page.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}
