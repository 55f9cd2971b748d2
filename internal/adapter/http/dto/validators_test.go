package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validate(v interface{}) error {
	return binding.Validator.ValidateStruct(v)
}

func TestSafeReference_Accepted(t *testing.T) {
	req := PurchaseRequest{
		Category: "airtime",
		Amount:   decimal.NewFromInt(100),
		Pin:      "1234",
		Payload:  map[string]string{"phone": "08030000000"},
	}

	for _, ref := range []string{"", "AIR-01HX.abc_123", "client-key-42"} {
		req.Reference = ref
		assert.NoError(t, validate(&req), "reference %q should be accepted", ref)
	}
}

func TestSafeReference_Rejected(t *testing.T) {
	req := PurchaseRequest{
		Category: "airtime",
		Amount:   decimal.NewFromInt(100),
		Pin:      "1234",
		Payload:  map[string]string{"phone": "08030000000"},
	}

	for _, ref := range []string{"has space", "semi;colon", "quote'", "slash/path"} {
		req.Reference = ref
		assert.Error(t, validate(&req), "reference %q should be rejected", ref)
	}
}

func TestCategory_Rejected(t *testing.T) {
	req := PurchaseRequest{
		Category: "wallet_funding", // credit category, not purchasable
		Amount:   decimal.NewFromInt(100),
		Pin:      "1234",
		Payload:  map[string]string{"phone": "08030000000"},
	}
	assert.Error(t, validate(&req))
}

func TestSanitizeStruct(t *testing.T) {
	req := RefundRequest{
		OriginalReference: "  AIR-REF-1  ",
		Reason:            "<script>alert(1)</script>",
	}

	SanitizeStruct(&req)

	assert.Equal(t, "AIR-REF-1", req.OriginalReference)
	assert.NotContains(t, req.Reason, "<script>")
}
