package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"kobopay/internal/core/domain"
	"kobopay/internal/metrics"
	"kobopay/pkg/apperror"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// wireResult is a provider reply normalized by a client but not yet
// classified. Code is the provider's documented status code verbatim.
type wireResult struct {
	Code        string
	ProviderRef string
	Message     string
	Body        json.RawMessage
}

// upstream is implemented by each provider client. Clients normalize wire
// responses and report their documented code sets; they never classify.
// A transport failure, timeout or 5xx comes back as an error.
type upstream interface {
	Supports(category domain.Category) bool
	Submit(ctx context.Context, reference string, category domain.Category, payload map[string]string) (*wireResult, error)
	Requery(ctx context.Context, reference string, providerRef *string) (*wireResult, error)
	SuccessCodes() map[string]struct{}
	FailureCodes() map[string]struct{}
}

// Gateway implements ports.ProviderGateway. All tri-state classification
// lives here: a documented success code confirms success, a documented
// decline confirms failure, and everything else, including transport
// errors, timeouts and codes the client has never documented, is
// indeterminate. The caller keeps the debit reserved on indeterminate.
type Gateway struct {
	clients []upstream
	timeout time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewGateway creates a gateway over the given clients with a bounded
// per-call timeout.
func NewGateway(timeout time.Duration, m *metrics.Metrics, log zerolog.Logger, clients ...upstream) *Gateway {
	return &Gateway{
		clients: clients,
		timeout: timeout,
		metrics: m,
		log:     log.With().Str("component", "provider_gateway").Logger(),
	}
}

// Call submits a request to the client that handles the category and
// classifies the reply. The returned error is reserved for caller mistakes
// (unsupported category); provider trouble is expressed as an
// indeterminate result, not an error.
func (g *Gateway) Call(ctx context.Context, category domain.Category, reference string, payload map[string]string) (*domain.ProviderResult, error) {
	client, err := g.clientFor(category)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := client.Submit(callCtx, reference, category, payload)
	g.metrics.ProviderCallDuration.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())
	if err != nil {
		g.log.Warn().Err(err).
			Str("reference", reference).
			Str("category", string(category)).
			Msg("provider call did not complete, leaving outcome indeterminate")
		return &domain.ProviderResult{Outcome: domain.OutcomeIndeterminate}, nil
	}
	return g.classify(client, res), nil
}

// Requery asks the provider for the status of an earlier submission.
func (g *Gateway) Requery(ctx context.Context, txn *domain.Transaction) (*domain.ProviderResult, error) {
	client, err := g.clientFor(txn.Category)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := client.Requery(callCtx, txn.Reference, txn.ProviderReference)
	g.metrics.ProviderCallDuration.WithLabelValues(string(txn.Category)).Observe(time.Since(start).Seconds())
	if err != nil {
		g.log.Warn().Err(err).
			Str("reference", txn.Reference).
			Msg("provider requery did not complete")
		return &domain.ProviderResult{Outcome: domain.OutcomeIndeterminate}, nil
	}
	return g.classify(client, res), nil
}

// Supports reports whether any configured client handles the category.
// Callers check this before reserving money for a purchase.
func (g *Gateway) Supports(category domain.Category) bool {
	_, err := g.clientFor(category)
	return err == nil
}

func (g *Gateway) clientFor(category domain.Category) (upstream, error) {
	for _, c := range g.clients {
		if c.Supports(category) {
			return c, nil
		}
	}
	return nil, apperror.ErrUnsupportedCategory(string(category))
}

func (g *Gateway) classify(client upstream, res *wireResult) *domain.ProviderResult {
	result := &domain.ProviderResult{
		ProviderReference: res.ProviderRef,
		RawPayload:        res.Body,
	}

	if _, ok := client.SuccessCodes()[res.Code]; ok {
		result.Outcome = domain.OutcomeConfirmedSuccess
		return result
	}
	if _, ok := client.FailureCodes()[res.Code]; ok {
		result.Outcome = domain.OutcomeConfirmedFailure
		result.FailureReason = res.Message
		if result.FailureReason == "" {
			result.FailureReason = "provider declined with code " + res.Code
		}
		return result
	}

	// Undocumented code. The provider may still have processed the request.
	g.log.Warn().Str("code", res.Code).Msg("undocumented provider code, leaving outcome indeterminate")
	result.Outcome = domain.OutcomeIndeterminate
	return result
}
