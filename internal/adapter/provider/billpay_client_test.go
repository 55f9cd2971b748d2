package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"kobopay/config"
	"kobopay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cannedHTTPClient returns a fixed response, recording the last request.
type cannedHTTPClient struct {
	status   int
	body     string
	err      error
	lastReq  *http.Request
	lastBody []byte
}

func (c *cannedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.lastReq = req
	if req.Body != nil {
		c.lastBody, _ = io.ReadAll(req.Body)
	}
	if c.err != nil {
		return nil, c.err
	}
	return &http.Response{
		StatusCode: c.status,
		Body:       io.NopCloser(bytes.NewReader([]byte(c.body))),
	}, nil
}

func testBillPayClient(httpClient HTTPClient) *BillPayClient {
	return NewBillPayClient(config.ProviderEndpoint{
		BaseURL: "https://sandbox.billpay.test",
		APIKey:  "test-key",
	}, httpClient)
}

func TestBillPayClient_Supports(t *testing.T) {
	client := testBillPayClient(&cannedHTTPClient{})

	assert.True(t, client.Supports(domain.CategoryAirtime))
	assert.True(t, client.Supports(domain.CategoryData))
	assert.True(t, client.Supports(domain.CategoryElectricity))
	assert.True(t, client.Supports(domain.CategoryTV))
	assert.False(t, client.Supports(domain.CategoryNINVerification))
	assert.False(t, client.Supports(domain.CategoryReferralBonus))
}

func TestBillPayClient_Submit_Delivered(t *testing.T) {
	httpClient := &cannedHTTPClient{
		status: http.StatusOK,
		body:   `{"code":"000","response_description":"TRANSACTION SUCCESSFUL","content":{"transactions":{"status":"delivered","transactionId":"17512345"}}}`,
	}
	client := testBillPayClient(httpClient)

	res, err := client.Submit(context.Background(), "AIR-REF-1", domain.CategoryAirtime, map[string]string{
		"serviceID": "mtn",
		"phone":     "08012345678",
		"amount":    "500",
	})
	require.NoError(t, err)
	assert.Equal(t, "000", res.Code)
	assert.Equal(t, "17512345", res.ProviderRef)
	assert.Equal(t, "TRANSACTION SUCCESSFUL", res.Message)
	assert.JSONEq(t, httpClient.body, string(res.Body))

	// Request carries our reference as the provider idempotency key
	assert.Equal(t, "https://sandbox.billpay.test/api/pay", httpClient.lastReq.URL.String())
	assert.Equal(t, "test-key", httpClient.lastReq.Header.Get("api-key"))

	var sent map[string]string
	require.NoError(t, json.Unmarshal(httpClient.lastBody, &sent))
	assert.Equal(t, "AIR-REF-1", sent["request_id"])
	assert.Equal(t, "mtn", sent["serviceID"])
}

func TestBillPayClient_Submit_ServerError(t *testing.T) {
	client := testBillPayClient(&cannedHTTPClient{
		status: http.StatusBadGateway,
		body:   "upstream unavailable",
	})

	res, err := client.Submit(context.Background(), "AIR-REF-2", domain.CategoryAirtime, nil)
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestBillPayClient_Submit_TransportError(t *testing.T) {
	client := testBillPayClient(&cannedHTTPClient{err: errors.New("dial tcp: i/o timeout")})

	res, err := client.Submit(context.Background(), "AIR-REF-3", domain.CategoryAirtime, nil)
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestBillPayClient_Submit_MalformedBody(t *testing.T) {
	client := testBillPayClient(&cannedHTTPClient{
		status: http.StatusOK,
		body:   "<html>not json</html>",
	})

	res, err := client.Submit(context.Background(), "AIR-REF-4", domain.CategoryAirtime, nil)
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestBillPayClient_DuplicateRequestIDNotAConfirmedFailure(t *testing.T) {
	client := testBillPayClient(&cannedHTTPClient{})

	// A reused request id means an earlier submission may already have
	// been delivered. Classing it as a decline would let a reconciler
	// re-credit funds the provider actually spent.
	_, failure := client.FailureCodes()["014"]
	assert.False(t, failure)
	_, success := client.SuccessCodes()["014"]
	assert.False(t, success)
}

func TestBillPayClient_Requery(t *testing.T) {
	httpClient := &cannedHTTPClient{
		status: http.StatusOK,
		body:   `{"code":"016","response_description":"TRANSACTION FAILED","content":{"transactions":{"status":"failed"}}}`,
	}
	client := testBillPayClient(httpClient)

	res, err := client.Requery(context.Background(), "AIR-REF-5", nil)
	require.NoError(t, err)
	assert.Equal(t, "016", res.Code)
	assert.Equal(t, "https://sandbox.billpay.test/api/requery", httpClient.lastReq.URL.String())

	var sent map[string]string
	require.NoError(t, json.Unmarshal(httpClient.lastBody, &sent))
	assert.Equal(t, "AIR-REF-5", sent["request_id"])
}
