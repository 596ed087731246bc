package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// NameSeaPay is the gateway-redirect provider: the checkout "session" is a
// deterministic signed query string, completion comes back on the return
// redirect, and there is no push webhook. A query endpoint exists for
// re-polling the gateway's truth.
const NameSeaPay = "seapay"

// Gateway response codes echoed in return params.
const (
	seaPayCodeSuccess        = "00"
	seaPayCodeCustomerCancel = "24"
)

const seaPaySignatureParam = "sp_SecureHash"

// SeaPayConfig carries gateway credentials and endpoints.
type SeaPayConfig struct {
	PayURL       string
	QueryURL     string
	MerchantCode string
	HashSecret   string
	Timeout      time.Duration
}

// SeaPay implements Adapter for the gateway-redirect provider.
type SeaPay struct {
	cfg    SeaPayConfig
	client *http.Client
	now    func() time.Time
}

// NewSeaPay constructs the adapter with a bounded-timeout HTTP client.
func NewSeaPay(cfg SeaPayConfig) *SeaPay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SeaPay{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, now: time.Now}
}

// Name returns the provider discriminant.
func (s *SeaPay) Name() string { return NameSeaPay }

// HasWebhookSupport is false: the gateway only echoes results on the return
// redirect and answers polls, so callers must not wait for a push.
func (s *SeaPay) HasWebhookSupport() bool { return false }

// CreateSession builds the signed redirect query. SessionRef is the signed
// query string itself; the gateway holds no server-side session.
func (s *SeaPay) CreateSession(_ context.Context, input CreateSessionInput) (Session, error) {
	params := map[string]string{
		"sp_Version":    "1.0",
		"sp_Merchant":   s.cfg.MerchantCode,
		"sp_Amount":     strconv.FormatInt(input.AmountFiat, 10),
		"sp_OrderCode":  input.OrderCode,
		"sp_EntryRef":   input.EntryID,
		"sp_ReturnURL":  input.SuccessURL,
		"sp_IPAddr":     input.ClientIP,
		"sp_CreateDate": s.now().UTC().Format("20060102150405"),
	}

	query := canonicalQuery(params)
	signature := s.sign(query)
	signed := query + "&" + seaPaySignatureParam + "=" + signature

	return Session{
		RedirectURL: s.cfg.PayURL + "?" + signed,
		SessionRef:  signed,
	}, nil
}

type seaPayQueryResponse struct {
	ResponseCode  string `json:"response_code"`
	Amount        int64  `json:"amount"`
	OrderCode     string `json:"order_code"`
	EntryRef      string `json:"entry_ref"`
	TransactionNo string `json:"transaction_no"`
	Message       string `json:"message"`
}

// RetrieveSession polls the gateway's query endpoint for the order embedded
// in the signed session reference.
func (s *SeaPay) RetrieveSession(ctx context.Context, sessionRef string) (SessionState, error) {
	ref, err := url.ParseQuery(sessionRef)
	if err != nil {
		return SessionState{}, ErrSessionNotFound
	}
	orderCode := ref.Get("sp_OrderCode")
	if orderCode == "" {
		return SessionState{}, ErrSessionNotFound
	}

	params := map[string]string{
		"sp_Version":   "1.0",
		"sp_Merchant":  s.cfg.MerchantCode,
		"sp_OrderCode": orderCode,
		"sp_QueryDate": s.now().UTC().Format("20060102150405"),
	}
	query := canonicalQuery(params)
	form := query + "&" + seaPaySignatureParam + "=" + s.sign(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.QueryURL, strings.NewReader(form))
	if err != nil {
		return SessionState{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return SessionState{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return SessionState{}, ErrSessionNotFound
	case resp.StatusCode >= 500:
		return SessionState{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return SessionState{}, fmt.Errorf("seapay rejected query: status %d: %s", resp.StatusCode, payload)
	}

	var result seaPayQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SessionState{}, err
	}

	raw, _ := json.Marshal(result)
	return SessionState{
		Status:     seaPayStatus(result.ResponseCode),
		OrderCode:  result.OrderCode,
		EntryID:    result.EntryRef,
		AmountFiat: result.Amount,
		ChargeRef:  result.TransactionNo,
		Raw:        raw,
	}, nil
}

// VerifyCallback validates the return-redirect parameters: signature first,
// then the amount's format. Anything unverifiable is rejected outright.
func (s *SeaPay) VerifyCallback(payload CallbackPayload) (Callback, error) {
	if len(payload.Params) == 0 {
		return Callback{}, ErrSignatureInvalid
	}

	params := make(map[string]string, len(payload.Params))
	for k, v := range payload.Params {
		params[k] = v
	}
	providedHex := params[seaPaySignatureParam]
	delete(params, seaPaySignatureParam)
	if providedHex == "" {
		return Callback{}, ErrSignatureInvalid
	}

	provided, err := hex.DecodeString(providedHex)
	if err != nil {
		return Callback{}, ErrSignatureInvalid
	}
	mac := hmac.New(sha512.New, []byte(s.cfg.HashSecret))
	mac.Write([]byte(canonicalQuery(params)))
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return Callback{}, ErrSignatureInvalid
	}

	amount, err := strconv.ParseInt(params["sp_Amount"], 10, 64)
	if err != nil || amount <= 0 {
		return Callback{}, ErrSignatureInvalid
	}

	code := params["sp_ResponseCode"]
	raw, _ := json.Marshal(params)
	return Callback{
		Event:        "gateway.return",
		Status:       seaPayStatus(code),
		OrderCode:    params["sp_OrderCode"],
		EntryID:      params["sp_EntryRef"],
		AmountFiat:   amount,
		ChargeRef:    params["sp_TransactionNo"],
		ResponseCode: code,
		Raw:          raw,
	}, nil
}

func (s *SeaPay) sign(query string) string {
	mac := hmac.New(sha512.New, []byte(s.cfg.HashSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery encodes params sorted by key, the order the gateway signs.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

func seaPayStatus(code string) string {
	switch code {
	case seaPayCodeSuccess:
		return PaymentCaptured
	case seaPayCodeCustomerCancel:
		return PaymentCanceled
	case "":
		return PaymentPending
	default:
		return PaymentFailed
	}
}
