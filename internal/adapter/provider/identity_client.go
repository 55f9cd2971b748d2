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

// Identity verification response codes. "00" is a verified match; the
// failure set covers the documented not-found and invalid-parameter
// declines. Everything else, including the provider's own service errors,
// stays indeterminate.
var (
	identitySuccessCodes = map[string]struct{}{
		"00": {}, // verified
	}
	identityFailureCodes = map[string]struct{}{
		"01": {}, // record not found
		"02": {}, // invalid id number
		"03": {}, // rejected by issuing authority
	}
)

// identityResponse mirrors the verification API envelope.
type identityResponse struct {
	ResponseCode       string `json:"response_code"`
	Detail             string `json:"detail"`
	VerificationCallID string `json:"verification_call_id"`
}

// IdentityClient talks to the NIN/BVN identity-verification provider.
type IdentityClient struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
}

// NewIdentityClient creates an identity-verification client.
func NewIdentityClient(cfg config.ProviderEndpoint, httpClient HTTPClient) *IdentityClient {
	return &IdentityClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// Supports reports whether the client handles the category.
func (c *IdentityClient) Supports(category domain.Category) bool {
	return category == domain.CategoryNINVerification || category == domain.CategoryBVNVerification
}

// Submit runs a verification lookup. The id number travels in the payload
// under "number"; our reference is forwarded so the provider can dedupe.
func (c *IdentityClient) Submit(ctx context.Context, reference string, category domain.Category, payload map[string]string) (*wireResult, error) {
	path := "/verification/nin"
	if category == domain.CategoryBVNVerification {
		path = "/verification/bvn"
	}

	body := map[string]string{
		"reference": reference,
	}
	for k, v := range payload {
		body[k] = v
	}
	return c.post(ctx, path, body)
}

// Requery fetches the stored result of an earlier lookup by our reference.
func (c *IdentityClient) Requery(ctx context.Context, reference string, _ *string) (*wireResult, error) {
	return c.post(ctx, "/verification/status", map[string]string{"reference": reference})
}

// SuccessCodes returns the documented confirmed-success codes.
func (c *IdentityClient) SuccessCodes() map[string]struct{} { return identitySuccessCodes }

// FailureCodes returns the documented confirmed-failure codes.
func (c *IdentityClient) FailureCodes() map[string]struct{} { return identityFailureCodes }

func (c *IdentityClient) post(ctx context.Context, path string, body map[string]string) (*wireResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal identity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read identity response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("identity server error: status %d", resp.StatusCode)
	}

	var parsed identityResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}

	return &wireResult{
		Code:        parsed.ResponseCode,
		ProviderRef: parsed.VerificationCallID,
		Message:     parsed.Detail,
		Body:        json.RawMessage(raw),
	}, nil
}
