// README: Payment provider contract and the error kinds it surfaces.
package payment

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRejected means the provider answered and reported failure.
	ErrRejected = errors.New("payment rejected by provider")
	// ErrProviderUnavailable means the provider could not be reached or
	// answered with something unreadable. Retryable.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// ProviderError carries the operation and provider message. Kind is
// ErrRejected or ErrProviderUnavailable.
type ProviderError struct {
	Op      string
	Kind    error
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Kind }

func (e *ProviderError) Retryable() bool { return errors.Is(e.Kind, ErrProviderUnavailable) }

type InitiateRequest struct {
	Phone       string
	Amount      int64 // whole currency units
	CallbackURL string
	Reference   string
	Description string
}

// Result is a parsed provider answer. Error is set when the provider
// reported a business failure. Body is always the raw payload.
type Result struct {
	StatusCode int
	Body       []byte
	RequestID  string
	Status     string
	Receipt    string
	Error      string
}

func (r Result) Failed() bool { return r.Error != "" }

// Provider talks to the mobile-money API. A non-nil error means the call
// did not produce a usable answer.
type Provider interface {
	Initiate(ctx context.Context, req InitiateRequest) (Result, error)
	Query(ctx context.Context, remoteID string) (Result, error)
	TransactionStatus(ctx context.Context, phone, remoteID, resultURL string) (Result, error)
	Simulate(ctx context.Context, phone string, amount int64, reference string) (Result, error)
}
