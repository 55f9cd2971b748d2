package domain

import (
	"github.com/oklog/ulid/v2"
)

// categoryHints map each category to the short prefix embedded in generated
// references, so a reference is recognizable in provider dashboards and logs.
var categoryHints = map[Category]string{
	CategoryAirtime:          "AIR",
	CategoryData:             "DTA",
	CategoryElectricity:      "ELC",
	CategoryTV:               "TVS",
	CategoryNINVerification:  "NIN",
	CategoryBVNVerification:  "BVN",
	CategoryTransportBooking: "TRB",
	CategoryTransportRefund:  "TRF",
	CategoryReferralBonus:    "BNS",
	CategoryWalletFunding:    "FND",
	CategoryRefund:           "RFD",
}

// NewReference generates a unique idempotency reference for a money-moving
// operation: a category hint plus a ULID (millisecond timestamp + random
// suffix). Safe for concurrent use; the charset is accepted by provider
// request-id fields. Generation is pure; the unique index on
// transactions.reference is the authoritative guard.
func NewReference(category Category) string {
	hint, ok := categoryHints[category]
	if !ok {
		hint = "TXN"
	}
	return hint + "-" + ulid.Make().String()
}

// RefundReference derives the reference for the refund of an original
// transaction, making refund requests idempotent per original reference.
func RefundReference(originalReference string) string {
	return "RF-" + originalReference
}
