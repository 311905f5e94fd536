// README: Safaricom Daraja client: OAuth, STK push, STK query, transaction status, C2B simulate.
package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"twende/internal/config"
	"twende/internal/observability"
)

const (
	darajaTimeLayout = "20060102150405"
	// STK query answers with this code while the customer has not responded yet.
	stkPendingCode = "500.001.1001"
)

var errUnauthorized = errors.New("mpesa: oauth rejected credentials")

// MpesaClient implements Provider against the Daraja REST API.
type MpesaClient struct {
	cfg  config.MpesaConfig
	http *http.Client
	now  func() time.Time

	mu          sync.Mutex
	accessToken string
	expires     time.Time
}

func NewMpesaClient(cfg config.MpesaConfig) *MpesaClient {
	return &MpesaClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
}

type darajaAnswer struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ConversationID      string `json:"ConversationID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

func (c *MpesaClient) Initiate(ctx context.Context, req InitiateRequest) (Result, error) {
	ts := c.now().Format(darajaTimeLayout)
	phone := NormalizePhone(req.Phone)
	res, ans, err := c.post(ctx, "initiate", "/mpesa/stkpush/v1/processrequest", map[string]any{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount,
		"PartyA":            phone,
		"PartyB":            c.cfg.Shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       req.CallbackURL,
		"AccountReference":  req.Reference,
		"TransactionDesc":   req.Description,
	})
	if err != nil || res.Failed() {
		return res, err
	}
	if ans.ResponseCode != "0" || ans.CheckoutRequestID == "" {
		res.Error = firstNonEmpty(ans.ResponseDescription, "initiation not accepted")
		return res, nil
	}
	res.RequestID = ans.CheckoutRequestID
	res.Status = StatusStarted
	return res, nil
}

func (c *MpesaClient) Query(ctx context.Context, remoteID string) (Result, error) {
	ts := c.now().Format(darajaTimeLayout)
	res, ans, err := c.post(ctx, "query", "/mpesa/stkpushquery/v1/query", map[string]any{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": remoteID,
	})
	if err != nil {
		return res, err
	}
	if ans.ErrorCode == stkPendingCode {
		res.Error = ""
		res.Status = "Pending"
		return res, nil
	}
	if res.Failed() {
		return res, nil
	}
	switch ans.ResultCode {
	case "0":
		res.Status = StatusPaid
	case "":
		res.Status = firstNonEmpty(ans.ResponseDescription, "Pending")
	default:
		res.Error = firstNonEmpty(ans.ResultDesc, "result code "+ans.ResultCode)
	}
	return res, nil
}

func (c *MpesaClient) TransactionStatus(ctx context.Context, phone, remoteID, resultURL string) (Result, error) {
	res, ans, err := c.post(ctx, "transaction_status", "/mpesa/transactionstatus/v1/query", map[string]any{
		"Initiator":          c.cfg.Initiator,
		"SecurityCredential": c.cfg.SecurityCredential,
		"CommandID":          "TransactionStatusQuery",
		"TransactionID":      remoteID,
		"PartyA":             c.cfg.Shortcode,
		"IdentifierType":     "4",
		"ResultURL":          resultURL,
		"QueueTimeOutURL":    c.cfg.TimeoutURL,
		"Remarks":            "ride payment status",
		"Occasion":           NormalizePhone(phone),
	})
	if err != nil || res.Failed() {
		return res, err
	}
	if ans.ResponseCode != "0" {
		res.Error = firstNonEmpty(ans.ResponseDescription, "status query not accepted")
		return res, nil
	}
	res.RequestID = ans.ConversationID
	res.Status = "Queued"
	return res, nil
}

func (c *MpesaClient) Simulate(ctx context.Context, phone string, amount int64, reference string) (Result, error) {
	res, ans, err := c.post(ctx, "simulate", "/mpesa/c2b/v1/simulate", map[string]any{
		"ShortCode":     c.cfg.Shortcode,
		"CommandID":     "CustomerPayBillOnline",
		"Amount":        amount,
		"Msisdn":        NormalizePhone(phone),
		"BillRefNumber": reference,
	})
	if err != nil || res.Failed() {
		return res, err
	}
	if ans.ResponseCode != "" && ans.ResponseCode != "0" {
		res.Error = firstNonEmpty(ans.ResponseDescription, "simulation not accepted")
		return res, nil
	}
	res.Status = "Simulated"
	return res, nil
}

// post sends an authenticated JSON request. Transport failures, 5xx answers
// without a provider error and unreadable bodies are returned as errors;
// provider-reported failures set Result.Error.
func (c *MpesaClient) post(ctx context.Context, op, path string, payload any) (res Result, ans darajaAnswer, err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		switch {
		case err != nil:
			outcome = "unavailable"
		case res.Failed():
			outcome = "rejected"
		}
		observability.PaymentCallsTotal.WithLabelValues(op, outcome).Inc()
		observability.PaymentCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	token, err := c.token(ctx)
	if err != nil {
		return res, ans, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return res, ans, fmt.Errorf("mpesa %s: encode: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return res, ans, fmt.Errorf("mpesa %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return res, ans, fmt.Errorf("mpesa %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return res, ans, fmt.Errorf("mpesa %s: read body: %w", op, err)
	}
	res.StatusCode = resp.StatusCode
	res.Body = raw

	if err := json.Unmarshal(raw, &ans); err != nil {
		return res, ans, fmt.Errorf("mpesa %s: status %d: malformed body: %w", op, resp.StatusCode, err)
	}
	if ans.ErrorMessage != "" || ans.ErrorCode != "" {
		res.Error = firstNonEmpty(ans.ErrorMessage, "error code "+ans.ErrorCode)
		return res, ans, nil
	}
	if resp.StatusCode >= 500 {
		return res, ans, fmt.Errorf("mpesa %s: status %d", op, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		res.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return res, ans, nil
}

// token returns a cached OAuth access token, refreshing it a minute before expiry.
func (c *MpesaClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && c.now().Before(c.expires) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/oauth/v1/generate?grant_type=client_credentials"), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa oauth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return "", errUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mpesa oauth: status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("mpesa oauth: %w", err)
	}
	secs, err := out.ExpiresIn.Int64()
	if err != nil || secs <= 0 {
		secs = 3599
	}
	c.accessToken = out.AccessToken
	c.expires = c.now().Add(time.Duration(secs)*time.Second - time.Minute)
	return c.accessToken, nil
}

func (c *MpesaClient) password(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.Shortcode + c.cfg.Passkey + ts))
}

func (c *MpesaClient) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// NormalizePhone rewrites local Kenyan numbers (07..., +2547...) to 2547....
func NormalizePhone(phone string) string {
	p := strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if strings.HasPrefix(p, "0") {
		return "254" + p[1:]
	}
	return p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
