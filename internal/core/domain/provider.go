package domain

import "encoding/json"

// ProviderOutcome is the tri-state classification of an external call. The
// engine never guesses: anything not explicitly confirmed either way is
// indeterminate and stays pending until reconciliation resolves it.
type ProviderOutcome string

const (
	OutcomeConfirmedSuccess ProviderOutcome = "confirmed-success"
	OutcomeConfirmedFailure ProviderOutcome = "confirmed-failure"
	OutcomeIndeterminate    ProviderOutcome = "indeterminate"
)

// ProviderResult is the classified outcome of one provider call. It is
// ephemeral; the raw payload is persisted on the owning Transaction.
type ProviderResult struct {
	Outcome           ProviderOutcome
	ProviderReference string          // external id, empty when the provider returned none
	RawPayload        json.RawMessage // verbatim response body
	FailureReason     string          // set on confirmed-failure
}
