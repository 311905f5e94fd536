// README: Payment orchestrator: start, initiate, poll, simulate, and webhook reconciliation.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"twende/internal/modules/ride"
	"twende/internal/modules/user"
	"twende/internal/observability"
	"twende/internal/types"
)

var (
	ErrNotFound   = errors.New("payment not found")
	ErrNoRemoteID = errors.New("payment has not been started with the provider")
	ErrInFlight   = errors.New("payment initiation already in progress")
	ErrNotPayable = errors.New("ride cannot be paid by mobile money")
)

// Ack is the fixed webhook acknowledgement.
const Ack = "success"

type Repository interface {
	GetOrCreate(ctx context.Context, seed *Payment) (*Payment, bool, error)
	Get(ctx context.Context, id types.ID) (*Payment, error)
	GetByRide(ctx context.Context, rideID types.ID) (*Payment, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*Payment, error)
	Claim(ctx context.Context, p *Payment, now time.Time, ttl time.Duration) (bool, error)
	Update(ctx context.Context, p *Payment) error
	AppendResponse(ctx context.Context, r *Response) error
	Responses(ctx context.Context, paymentID types.ID) ([]Response, error)
	AppendWebhookLog(ctx context.Context, l *WebhookLog) error
}

type Rides interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type Users interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
}

// Settler moves a ride on once its payment is confirmed.
type Settler interface {
	Settled(ctx context.Context, rideID types.ID) error
}

type SettlerFunc func(ctx context.Context, rideID types.ID) error

func (f SettlerFunc) Settled(ctx context.Context, rideID types.ID) error { return f(ctx, rideID) }

type Options struct {
	CallbackURL string
	ResultURL   string
	ClaimTTL    time.Duration
	Description string
}

type Service struct {
	store    Repository
	provider Provider
	rides    Rides
	users    Users
	settler  Settler
	opts     Options
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(store Repository, provider Provider, rides Rides, users Users, opts Options, log logrus.FieldLogger) *Service {
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 2 * time.Minute
	}
	if opts.Description == "" {
		opts.Description = "Payment for ride"
	}
	return &Service{store: store, provider: provider, rides: rides, users: users, opts: opts, log: log, now: time.Now}
}

// SetSettler registers the hook called when a callback confirms payment.
func (s *Service) SetSettler(st Settler) { s.settler = st }

// StartPayment is the idempotent entry point: a payment without a remote id
// is (re)initiated, otherwise its status is polled.
func (s *Service) StartPayment(ctx context.Context, rideID types.ID) (*Payment, error) {
	r, err := s.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.PaymentMethod != ride.PaymentMpesa || r.Fare == nil || r.Fare.Amount <= 0 {
		return nil, ErrNotPayable
	}
	customer, err := s.users.Get(ctx, r.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer.Phone == "" {
		return nil, fmt.Errorf("%w: customer has no phone number", ErrNotPayable)
	}

	now := s.now()
	p, created, err := s.store.GetOrCreate(ctx, &Payment{
		ID:        types.NewID(),
		RideID:    r.ID,
		Phone:     customer.Phone,
		Amount:    *r.Fare,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	if created || p.RemoteID == "" {
		p.Amount = *r.Fare
		p.Phone = customer.Phone
		return s.Initiate(ctx, p)
	}
	return s.CheckStatus(ctx, p.ID)
}

// Initiate claims p and asks the provider to charge it. Provider failures are
// recorded as status Failed and are not returned.
func (s *Service) Initiate(ctx context.Context, p *Payment) (*Payment, error) {
	log := s.log.WithFields(logrus.Fields{"payment_id": p.ID, "ride_id": p.RideID})
	p.TransactionID = Token(p.ID)
	claimed, err := s.store.Claim(ctx, p, s.now(), s.opts.ClaimTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrInFlight
	}

	res, callErr := s.provider.Initiate(ctx, InitiateRequest{
		Phone:       p.Phone,
		Amount:      wholeUnits(p.Amount),
		CallbackURL: s.opts.CallbackURL,
		Reference:   p.TransactionID,
		Description: fmt.Sprintf("%s %s", s.opts.Description, p.RideID),
	})
	s.record(ctx, p.ID, "initiate", res, callErr)

	p.ClaimedAt = nil
	p.UpdatedAt = s.now()
	switch {
	case callErr != nil:
		p.Status = StatusFailed
		log.WithError(callErr).Warn("payment initiation unavailable")
	case res.Failed() || res.RequestID == "":
		p.Status = StatusFailed
		log.WithField("provider_error", res.Error).Warn("payment initiation rejected")
	default:
		p.RemoteID = res.RequestID
		p.Status = StatusStarted
		log.WithField("remote_id", p.RemoteID).Info("payment initiated")
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CheckStatus polls the provider using the remote id.
func (s *Service) CheckStatus(ctx context.Context, paymentID types.ID) (*Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.RemoteID == "" {
		return nil, ErrNoRemoteID
	}
	res, callErr := s.provider.Query(ctx, p.RemoteID)
	return s.settle(ctx, p, "query", res, callErr, StatusFailed)
}

// CheckRequestStatus polls through the transaction status API. Its failure
// status is the lower-case "failed".
func (s *Service) CheckRequestStatus(ctx context.Context, paymentID types.ID) (*Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.RemoteID == "" {
		return nil, ErrNoRemoteID
	}
	res, callErr := s.provider.TransactionStatus(ctx, p.Phone, p.RemoteID, s.opts.ResultURL)
	return s.settle(ctx, p, "transaction_status", res, callErr, statusRequestFailed)
}

// Simulate runs a sandbox customer payment against the payment.
func (s *Service) Simulate(ctx context.Context, paymentID types.ID) (*Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.RemoteID == "" {
		return nil, ErrNoRemoteID
	}
	res, callErr := s.provider.Simulate(ctx, p.Phone, wholeUnits(p.Amount), p.TransactionID)
	s.record(ctx, p.ID, "simulate", res, callErr)
	if callErr != nil {
		return nil, &ProviderError{Op: "simulate", Kind: ErrProviderUnavailable, Message: callErr.Error()}
	}
	if res.Failed() {
		return nil, &ProviderError{Op: "simulate", Kind: ErrRejected, Message: res.Error}
	}
	p.Status = res.Status
	p.UpdatedAt = s.now()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Payment, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetByRide(ctx context.Context, rideID types.ID) (*Payment, error) {
	return s.store.GetByRide(ctx, rideID)
}

func (s *Service) Responses(ctx context.Context, paymentID types.ID) ([]Response, error) {
	return s.store.Responses(ctx, paymentID)
}

// settle records a poll answer and applies it. Unreachable providers leave the
// status alone; rejections store failedStatus and are returned.
func (s *Service) settle(ctx context.Context, p *Payment, op string, res Result, callErr error, failedStatus string) (*Payment, error) {
	s.record(ctx, p.ID, op, res, callErr)
	if callErr != nil {
		return nil, &ProviderError{Op: op, Kind: ErrProviderUnavailable, Message: callErr.Error()}
	}

	p.UpdatedAt = s.now()
	if res.Failed() {
		p.Status = failedStatus
		if err := s.store.Update(ctx, p); err != nil {
			return nil, err
		}
		return nil, &ProviderError{Op: op, Kind: ErrRejected, Message: res.Error}
	}
	p.Status = res.Status
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	if p.Status == StatusPaid {
		s.settled(ctx, p)
	}
	return p, nil
}

// record persists the raw provider answer before it is interpreted.
func (s *Service) record(ctx context.Context, paymentID types.ID, op string, res Result, callErr error) {
	body := string(res.Body)
	if body == "" && callErr != nil {
		body = callErr.Error()
	}
	r := &Response{PaymentID: paymentID, Operation: op, StatusCode: res.StatusCode, Body: body, CreatedAt: s.now()}
	if err := s.store.AppendResponse(ctx, r); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"payment_id": paymentID, "op": op}).Error("persist provider response failed")
	}
}

func (s *Service) settled(ctx context.Context, p *Payment) {
	if s.settler == nil {
		return
	}
	if err := s.settler.Settled(ctx, p.RideID); err != nil {
		s.log.WithError(err).WithField("ride_id", p.RideID).Warn("advance paid ride failed")
	}
}

type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (c stkCallback) receipt() string {
	for _, it := range c.Body.StkCallback.CallbackMetadata.Item {
		if it.Name != "MpesaReceiptNumber" {
			continue
		}
		var v string
		if err := json.Unmarshal(it.Value, &v); err == nil {
			return v
		}
	}
	return ""
}

// HandleCallback logs the raw webhook first, then reconciles STK callbacks on
// a best-effort basis. It always returns Ack.
func (s *Service) HandleCallback(ctx context.Context, raw []byte) string {
	outcome := s.reconcile(ctx, raw)
	observability.WebhooksTotal.WithLabelValues(outcome).Inc()
	return Ack
}

// HandleOversizedCallback records the head of a callback whose body went past
// limit. Nothing is reconciled from it; it returns Ack.
func (s *Service) HandleOversizedCallback(ctx context.Context, head []byte, limit int64) string {
	s.log.WithFields(logrus.Fields{"limit": limit, "received": len(head)}).Warn("payment webhook body over limit; stored truncated")
	l := &WebhookLog{Request: string(head), Response: Ack, Truncated: true, CreatedAt: s.now()}
	if err := s.store.AppendWebhookLog(ctx, l); err != nil {
		s.log.WithError(err).Error("persist payment webhook failed")
	}
	observability.WebhooksTotal.WithLabelValues("oversized").Inc()
	return Ack
}

func (s *Service) reconcile(ctx context.Context, raw []byte) string {
	if err := s.store.AppendWebhookLog(ctx, &WebhookLog{Request: string(raw), Response: Ack, CreatedAt: s.now()}); err != nil {
		s.log.WithError(err).WithField("body", string(raw)).Error("persist payment webhook failed")
	}

	var cb stkCallback
	if err := json.Unmarshal(callbackDocument(raw), &cb); err != nil || cb.Body.StkCallback.CheckoutRequestID == "" {
		return "unparsed"
	}
	stk := cb.Body.StkCallback
	p, err := s.store.GetByRemoteID(ctx, stk.CheckoutRequestID)
	if err != nil {
		s.log.WithError(err).WithField("remote_id", stk.CheckoutRequestID).Warn("payment webhook unmatched")
		return "unmatched"
	}

	s.record(ctx, p.ID, "callback", Result{StatusCode: 200, Body: raw}, nil)
	p.UpdatedAt = s.now()
	outcome := "paid"
	if stk.ResultCode == 0 {
		p.Status = StatusPaid
		p.MpesaCode = cb.receipt()
	} else {
		p.Status = StatusFailed
		outcome = "failed"
	}
	if err := s.store.Update(ctx, p); err != nil {
		s.log.WithError(err).WithField("payment_id", p.ID).Error("update payment from webhook failed")
		return "error"
	}
	s.log.WithFields(logrus.Fields{"payment_id": p.ID, "status": p.Status, "result": stk.ResultDesc}).Info("payment webhook applied")
	if p.Status == StatusPaid {
		s.settled(ctx, p)
	}
	return outcome
}

// wholeUnits rounds minor units up to whole shillings for the provider.
func wholeUnits(m types.Money) int64 {
	return (m.Amount + 99) / 100
}

// callbackDocument unwraps form-encoded callbacks whose JSON object arrives as
// a single field name or value. Anything else is returned unchanged.
func callbackDocument(raw []byte) []byte {
	if json.Valid(raw) {
		return raw
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return raw
	}
	for key, values := range form {
		if isJSONObject(key) {
			return []byte(key)
		}
		for _, v := range values {
			if isJSONObject(v) {
				return []byte(v)
			}
		}
	}
	return raw
}

func isJSONObject(v string) bool {
	v = strings.TrimSpace(v)
	return strings.HasPrefix(v, "{") && json.Valid([]byte(v))
}
