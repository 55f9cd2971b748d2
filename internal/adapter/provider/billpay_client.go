package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"kobopay/config"
	"kobopay/internal/core/domain"
)

// VTU provider status codes, from the bill-payment API reference. Any code
// not listed either way is treated upstream as indeterminate, notably
// "099" (transaction processing).
var (
	billPaySuccessCodes = map[string]struct{}{
		"000": {}, // transaction delivered
	}
	billPayFailureCodes = map[string]struct{}{
		"010": {}, // variation code does not exist
		"012": {}, // product does not exist
		"013": {}, // below minimum amount
		// "014" (request id already exists) is deliberately absent: a
		// reused id means an earlier submission may have been delivered,
		// so the outcome stays indeterminate until a requery confirms it.
		"016": {}, // transaction failed
		"017": {}, // above maximum amount
		"018": {}, // low provider wallet balance
		"021": {}, // account locked
		"022": {}, // account suspended
		"023": {}, // api access disabled
		"030": {}, // biller not reachable
		"031": {}, // below minimum quantity
		"032": {}, // above maximum quantity
		"034": {}, // service suspended
		"083": {}, // system error on decline
	}
)

// billPayResponse mirrors the VTU API envelope.
type billPayResponse struct {
	Code                string `json:"code"`
	ResponseDescription string `json:"response_description"`
	Content             struct {
		Transactions struct {
			Status        string `json:"status"`
			TransactionID string `json:"transactionId"`
		} `json:"transactions"`
	} `json:"content"`
}

// BillPayClient talks to the VTU bill-payment provider (airtime, data
// bundles, electricity tokens, TV subscriptions).
type BillPayClient struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
}

// NewBillPayClient creates a bill-payment client.
func NewBillPayClient(cfg config.ProviderEndpoint, httpClient HTTPClient) *BillPayClient {
	return &BillPayClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// Supports reports whether the client handles the category.
func (c *BillPayClient) Supports(category domain.Category) bool {
	switch category {
	case domain.CategoryAirtime, domain.CategoryData, domain.CategoryElectricity, domain.CategoryTV:
		return true
	}
	return false
}

// Submit sends a payment request. Our reference travels as request_id and
// doubles as the provider-side idempotency key.
func (c *BillPayClient) Submit(ctx context.Context, reference string, category domain.Category, payload map[string]string) (*wireResult, error) {
	body := map[string]string{
		"request_id": reference,
	}
	for k, v := range payload {
		body[k] = v
	}
	return c.post(ctx, "/api/pay", body)
}

// Requery fetches the current status of an earlier submission by request_id.
func (c *BillPayClient) Requery(ctx context.Context, reference string, _ *string) (*wireResult, error) {
	return c.post(ctx, "/api/requery", map[string]string{"request_id": reference})
}

// SuccessCodes returns the documented confirmed-success codes.
func (c *BillPayClient) SuccessCodes() map[string]struct{} { return billPaySuccessCodes }

// FailureCodes returns the documented confirmed-failure codes.
func (c *BillPayClient) FailureCodes() map[string]struct{} { return billPayFailureCodes }

func (c *BillPayClient) post(ctx context.Context, path string, body map[string]string) (*wireResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal billpay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build billpay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("billpay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read billpay response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("billpay server error: status %d", resp.StatusCode)
	}

	var parsed billPayResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode billpay response: %w", err)
	}

	return &wireResult{
		Code:        parsed.Code,
		ProviderRef: parsed.Content.Transactions.TransactionID,
		Message:     parsed.ResponseDescription,
		Body:        json.RawMessage(raw),
	}, nil
}
