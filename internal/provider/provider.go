package provider

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrUnsupportedProvider indicates no adapter is registered for the name.
	ErrUnsupportedProvider = errors.New("unsupported payment provider")

	// ErrSignatureInvalid indicates a callback failed verification. Payloads
	// that cannot be decoded or whose amounts cannot be parsed are treated the
	// same way; an unverifiable payload is never informative.
	ErrSignatureInvalid = errors.New("callback signature invalid")

	// ErrProviderUnavailable indicates a transport failure talking to the
	// provider. Safe to retry the whole orchestration step.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrSessionNotFound indicates the provider does not know the session.
	ErrSessionNotFound = errors.New("provider session not found")
)

// Normalized payment states reported back by an adapter.
const (
	PaymentPending  = "pending"
	PaymentCaptured = "captured"
	PaymentCanceled = "canceled"
	PaymentExpired  = "expired"
	PaymentFailed   = "failed"
)

// CreateSessionInput carries everything an adapter needs to open a payable
// session with its provider.
type CreateSessionInput struct {
	AmountFiat int64
	OrderCode  string
	EntryID    string
	SuccessURL string
	CancelURL  string
	ClientIP   string
}

// Session is the provider's answer to a create call.
type Session struct {
	RedirectURL string
	SessionRef  string
}

// SessionState is the provider's current truth about a session, used by the
// pull-based confirmation paths.
type SessionState struct {
	Status     string
	OrderCode  string
	EntryID    string
	AmountFiat int64
	ChargeRef  string
	Raw        json.RawMessage
}

// CallbackPayload is an inbound asynchronous signal before verification:
// either a signed JSON body (webhook) or signed query parameters (return
// redirect), depending on the adapter.
type CallbackPayload struct {
	Body      []byte
	Signature string
	Params    map[string]string
}

// Callback is a verified, normalized callback. Status carries the adapter's
// reading of the event; ResponseCode preserves the raw gateway code for
// status reasons.
type Callback struct {
	Event        string
	Status       string
	OrderCode    string
	EntryID      string
	AmountFiat   int64
	ChargeRef    string
	ResponseCode string
	Raw          json.RawMessage
}

// Adapter is the uniform capability set implemented once per external
// payment provider.
type Adapter interface {
	Name() string
	// HasWebhookSupport reports whether the provider pushes server-to-server
	// events; callers must not assume the push path exists.
	HasWebhookSupport() bool
	CreateSession(ctx context.Context, input CreateSessionInput) (Session, error)
	RetrieveSession(ctx context.Context, sessionRef string) (SessionState, error)
	VerifyCallback(payload CallbackPayload) (Callback, error)
}

// Registry resolves adapters by provider name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry indexes the given adapters by name.
func NewRegistry(adapters ...Adapter) *Registry {
	index := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		index[a.Name()] = a
	}
	return &Registry{adapters: index}
}

// Get returns the adapter for the provider name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return a, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
