package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the side of the wallet a transaction moves money on.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// Category is the business purpose of a transaction. It is an explicit
// required input to every money-moving operation, never inferred from a
// service id or payload string.
type Category string

const (
	CategoryAirtime          Category = "airtime"
	CategoryData             Category = "data"
	CategoryElectricity      Category = "electricity"
	CategoryTV               Category = "tv"
	CategoryNINVerification  Category = "nin_verification"
	CategoryBVNVerification  Category = "bvn_verification"
	CategoryTransportBooking Category = "transport_booking"
	CategoryTransportRefund  Category = "transport_refund"
	CategoryReferralBonus    Category = "referral_bonus"
	CategoryWalletFunding    Category = "wallet_funding"
	CategoryRefund           Category = "refund"
)

// PurchaseCategories are the debit categories a user can buy through a
// provider. Credits (funding, refunds, bonuses) are not in this set.
var PurchaseCategories = map[Category]struct{}{
	CategoryAirtime:          {},
	CategoryData:             {},
	CategoryElectricity:      {},
	CategoryTV:               {},
	CategoryNINVerification:  {},
	CategoryBVNVerification:  {},
	CategoryTransportBooking: {},
}

// IsPurchase reports whether c is a provider-backed debit category.
func (c Category) IsPurchase() bool {
	_, ok := PurchaseCategories[c]
	return ok
}

// RefundCategory returns the ledger category recorded when a transaction in
// category c is refunded.
func (c Category) RefundCategory() Category {
	if c == CategoryTransportBooking {
		return CategoryTransportRefund
	}
	return CategoryRefund
}

// TransactionStatus is the lifecycle state of a ledger entry.
// pending -> {success, failed}, terminal once reached.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// Transaction is an immutable ledger entry. BalanceBefore/BalanceAfter are
// recorded at commit time and never recomputed.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	Reference         string            `json:"reference"` // globally unique idempotency key
	UserID            uuid.UUID         `json:"user_id"`
	Direction         Direction         `json:"direction"`
	Amount            decimal.Decimal   `json:"amount"`
	BalanceBefore     decimal.Decimal   `json:"balance_before"`
	BalanceAfter      decimal.Decimal   `json:"balance_after"`
	Category          Category          `json:"category"`
	Status            TransactionStatus `json:"status"`
	ProviderReference *string           `json:"provider_reference,omitempty"`
	ProviderPayload   json.RawMessage   `json:"provider_payload,omitempty"` // verbatim provider response, kept for audit
	FailureReason     *string           `json:"failure_reason,omitempty"`
	OriginalReference *string           `json:"original_reference,omitempty"` // set on refunds
	NeedsReview       bool              `json:"needs_review"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsTerminal returns true if the transaction reached a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSuccess || t.Status == TransactionStatusFailed
}

// IsRefundable returns true if this transaction can be refunded: a debit
// that the provider confirmed as delivered.
func (t *Transaction) IsRefundable() bool {
	return t.Direction == DirectionDebit && t.Status == TransactionStatusSuccess
}

// CheckBalanceDelta verifies the atomic-pairing invariant recorded on the
// entry: balance_after - balance_before must equal +amount for a credit and
// -amount for a debit.
func (t *Transaction) CheckBalanceDelta() error {
	delta := t.BalanceAfter.Sub(t.BalanceBefore)
	want := t.Amount
	if t.Direction == DirectionDebit {
		want = t.Amount.Neg()
	}
	if !delta.Equal(want) {
		return fmt.Errorf("ledger entry %s: balance delta %s does not match %s %s",
			t.Reference, delta, t.Direction, t.Amount)
	}
	return nil
}

// Age returns how long the entry has existed, relative to now.
func (t *Transaction) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}
