package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NamePayvia is the redirect-checkout provider: a server-held session is
// created over HTTPS, the user pays on the provider's page, and completion
// arrives through a signed webhook or a client-reported return.
const NamePayvia = "payvia"

// Payvia event types.
const (
	payviaEventSessionCompleted = "checkout.session.completed"
	payviaEventSessionExpired   = "checkout.session.expired"
)

// PayviaConfig carries credentials and endpoints for the Payvia adapter.
type PayviaConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

// Payvia implements Adapter for the redirect-checkout provider.
type Payvia struct {
	cfg    PayviaConfig
	client *http.Client
}

// NewPayvia constructs the adapter with a bounded-timeout HTTP client.
func NewPayvia(cfg PayviaConfig) *Payvia {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Payvia{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name returns the provider discriminant.
func (p *Payvia) Name() string { return NamePayvia }

// HasWebhookSupport is true: Payvia pushes signed server-to-server events.
func (p *Payvia) HasWebhookSupport() bool { return true }

type payviaSession struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount_total"`
	Charge   string `json:"charge_id"`
	Metadata struct {
		EntryID   string `json:"entry_id"`
		OrderCode string `json:"order_code"`
	} `json:"metadata"`
}

// CreateSession opens a checkout session and returns its hosted payment URL.
func (p *Payvia) CreateSession(ctx context.Context, input CreateSessionInput) (Session, error) {
	body, err := json.Marshal(map[string]any{
		"amount_total": input.AmountFiat,
		"success_url":  input.SuccessURL,
		"cancel_url":   input.CancelURL,
		"metadata": map[string]string{
			"entry_id":   input.EntryID,
			"order_code": input.OrderCode,
		},
	})
	if err != nil {
		return Session{}, err
	}

	var created payviaSession
	if err := p.call(ctx, http.MethodPost, "/v1/checkout/sessions", body, &created); err != nil {
		return Session{}, err
	}
	return Session{RedirectURL: created.URL, SessionRef: created.ID}, nil
}

// RetrieveSession pulls the provider's current truth about a session.
func (p *Payvia) RetrieveSession(ctx context.Context, sessionRef string) (SessionState, error) {
	var session payviaSession
	if err := p.call(ctx, http.MethodGet, "/v1/checkout/sessions/"+sessionRef, nil, &session); err != nil {
		return SessionState{}, err
	}

	raw, _ := json.Marshal(session)
	return SessionState{
		Status:     payviaStatus(session.Status),
		OrderCode:  session.Metadata.OrderCode,
		EntryID:    session.Metadata.EntryID,
		AmountFiat: session.Amount,
		ChargeRef:  session.Charge,
		Raw:        raw,
	}, nil
}

type payviaEvent struct {
	Type string        `json:"type"`
	Data payviaSession `json:"data"`
}

// VerifyCallback checks the webhook body's HMAC-SHA256 signature before
// decoding anything it reports.
func (p *Payvia) VerifyCallback(payload CallbackPayload) (Callback, error) {
	if payload.Signature == "" || len(payload.Body) == 0 {
		return Callback{}, ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(p.cfg.WebhookSecret))
	mac.Write(payload.Body)
	provided, err := hex.DecodeString(payload.Signature)
	if err != nil {
		return Callback{}, ErrSignatureInvalid
	}
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return Callback{}, ErrSignatureInvalid
	}

	var event payviaEvent
	if err := json.Unmarshal(payload.Body, &event); err != nil {
		return Callback{}, ErrSignatureInvalid
	}

	status := PaymentPending
	switch event.Type {
	case payviaEventSessionCompleted:
		status = PaymentCaptured
	case payviaEventSessionExpired:
		status = PaymentExpired
	}

	return Callback{
		Event:      event.Type,
		Status:     status,
		OrderCode:  event.Data.Metadata.OrderCode,
		EntryID:    event.Data.Metadata.EntryID,
		AmountFiat: event.Data.Amount,
		ChargeRef:  event.Data.Charge,
		Raw:        append(json.RawMessage(nil), payload.Body...),
	}, nil
}

func (p *Payvia) call(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("payvia rejected request: status %d: %s", resp.StatusCode, payload)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func payviaStatus(status string) string {
	switch status {
	case "complete", "paid":
		return PaymentCaptured
	case "expired":
		return PaymentExpired
	case "canceled":
		return PaymentCanceled
	case "open", "pending":
		return PaymentPending
	default:
		return PaymentFailed
	}
}
