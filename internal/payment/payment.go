package payment

import (
	"context"
	"errors"
)

var (
	// ErrPaymentFailed means the collaborator reported a definitive failure
	// for an intent. Pending or ambiguous states are never mapped to it.
	ErrPaymentFailed = errors.New("payment failed")
)

// IntentStatus is the collaborator-reported state of a payment intent.
type IntentStatus string

const (
	IntentSucceeded IntentStatus = "succeeded"
	IntentCanceled  IntentStatus = "canceled"
	IntentFailed    IntentStatus = "failed"
)

// Definitive reports whether the status is a terminal failure. Anything that
// is neither succeeded nor a terminal failure is "not yet complete" and left
// to the caller to poll again.
func (s IntentStatus) DefinitiveFailure() bool {
	return s == IntentCanceled || s == IntentFailed
}

// Intent is the continuation handed back to the client for online
// settlement. ClientSecret is opaque to this service.
type Intent struct {
	ID           string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

// Client is the externally hosted payment-capture provider. Only its
// contract lives here; the provider itself is out of scope.
type Client interface {
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency, methodHint string) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (IntentStatus, error)
}
