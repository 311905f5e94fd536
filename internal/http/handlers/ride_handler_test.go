// README: Handler tests for ride authorization, error mapping, and the payment webhook.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twende/internal/http/handlers"
	httpmiddleware "twende/internal/http/middleware"
	"twende/internal/infra"
	"twende/internal/modules/payment"
	"twende/internal/modules/ride"
	"twende/internal/types"
)

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func makeVerifier(uid, role string) *stubTokenVerifier {
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	return &stubTokenVerifier{token: &infra.FirebaseToken{UID: uid, Claims: claims}}
}

// fakeRides embeds the interface so tests only implement what they exercise.
type fakeRides struct {
	handlers.RideService
	rides       map[types.ID]*ride.Ride
	created     []ride.CreateCommand
	transitions []ride.TransitionCommand
	err         error
}

func (f *fakeRides) Create(_ context.Context, cmd ride.CreateCommand) (*ride.Ride, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, cmd)
	return &ride.Ride{ID: "r-new", CustomerID: cmd.CustomerID, State: ride.StateNew, PaymentMethod: cmd.PaymentMethod}, nil
}

func (f *fakeRides) Get(_ context.Context, id types.ID) (*ride.Ride, error) {
	r, ok := f.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return r, nil
}

func (f *fakeRides) Transition(_ context.Context, cmd ride.TransitionCommand) (*ride.Ride, error) {
	f.transitions = append(f.transitions, cmd)
	if f.err != nil {
		return nil, f.err
	}
	r := *f.rides[cmd.RideID]
	r.State = ride.StateAccepted
	return &r, nil
}

func (f *fakeRides) Route(_ context.Context, _ types.ID) ([]types.Point, error) {
	return nil, nil
}

func buildTestRouter(verifier infra.TokenVerifier, svc handlers.RideService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Auth(verifier))
	h := handlers.NewRideHandler(svc)
	r.POST("/api/rides", h.Create)
	r.GET("/api/rides/:id", h.Get)
	r.GET("/api/rides/:id/route", h.Route)
	r.GET("/api/rides/:id/events", h.Events)
	r.POST("/api/rides/:id/transitions/:event", h.Transition)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}, authHeader string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func driverPtr(id types.ID) *types.ID { return &id }

func newFakeRides() *fakeRides {
	return &fakeRides{rides: map[types.ID]*ride.Ride{
		"r1": {ID: "r1", CustomerID: "cust1", DriverID: driverPtr("drv1"), State: ride.StateRequested},
	}}
}

func TestCreate_Unauthenticated(t *testing.T) {
	r := buildTestRouter(&stubTokenVerifier{err: errors.New("no token")}, newFakeRides())
	w := doRequest(r, http.MethodPost, "/api/rides", map[string]any{"origin_text": "CBD"}, "Bearer badtoken")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreate_UsesCallerAsCustomer(t *testing.T) {
	rides := newFakeRides()
	r := buildTestRouter(makeVerifier("cust9", ""), rides)
	w := doRequest(r, http.MethodPost, "/api/rides", map[string]any{
		"origin":         map[string]float64{"lat": -1.28, "lng": 36.82},
		"payment_method": "mpesa",
	}, "Bearer t")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, rides.created, 1)
	assert.Equal(t, types.ID("cust9"), rides.created[0].CustomerID)
	assert.Equal(t, ride.PaymentMpesa, rides.created[0].PaymentMethod)
	require.NotNil(t, rides.created[0].Origin)
	assert.Equal(t, -1.28, rides.created[0].Origin.Lat)
}

func TestCreate_RejectsUnknownPaymentMethod(t *testing.T) {
	rides := newFakeRides()
	r := buildTestRouter(makeVerifier("cust9", ""), rides)
	w := doRequest(r, http.MethodPost, "/api/rides", map[string]any{"payment_method": "card"}, "Bearer t")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rides.created)
}

func TestCreate_ActiveRideIsConflict(t *testing.T) {
	rides := newFakeRides()
	rides.err = ride.ErrActiveRide
	r := buildTestRouter(makeVerifier("cust1", ""), rides)
	w := doRequest(r, http.MethodPost, "/api/rides", map[string]any{"origin_text": "CBD"}, "Bearer t")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGet_Visibility(t *testing.T) {
	tests := []struct {
		name string
		uid  string
		role string
		want int
	}{
		{"customer", "cust1", "", http.StatusOK},
		{"driver", "drv1", "driver", http.StatusOK},
		{"admin", "ops", "admin", http.StatusOK},
		{"stranger", "someone", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := buildTestRouter(makeVerifier(tt.uid, tt.role), newFakeRides())
			w := doRequest(r, http.MethodGet, "/api/rides/r1", nil, "Bearer t")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGet_NotFoundAndBadID(t *testing.T) {
	r := buildTestRouter(makeVerifier("cust1", ""), newFakeRides())
	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodGet, "/api/rides/missing", nil, "Bearer t").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodGet, "/api/rides/bad%20id", nil, "Bearer t").Code)
}

func TestRoute_EmptyIsList(t *testing.T) {
	r := buildTestRouter(makeVerifier("cust1", ""), newFakeRides())
	w := doRequest(r, http.MethodGet, "/api/rides/r1/route", nil, "Bearer t")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"points":[]`)
}

func TestEvents_ListsAllowedTransitions(t *testing.T) {
	r := buildTestRouter(makeVerifier("drv1", "driver"), newFakeRides())
	w := doRequest(r, http.MethodGet, "/api/rides/r1/events", nil, "Bearer t")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		State  ride.State   `json:"state"`
		Events []ride.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ride.StateRequested, body.State)
	assert.Equal(t, []ride.Event{ride.EventAccept, ride.EventPayment, ride.EventRate, ride.EventFinalize, ride.EventCancel}, body.Events)

	w = doRequest(buildTestRouter(makeVerifier("stranger", ""), newFakeRides()), http.MethodGet, "/api/rides/r1/events", nil, "Bearer t")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTransition_PassesCallerAndEvent(t *testing.T) {
	rides := newFakeRides()
	r := buildTestRouter(makeVerifier("drv2", "driver"), rides)
	w := doRequest(r, http.MethodPost, "/api/rides/r1/transitions/accept", nil, "Bearer t")

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rides.transitions, 1)
	assert.Equal(t, ride.TransitionCommand{RideID: "r1", Event: ride.EventAccept, ActorID: "drv2"}, rides.transitions[0])
}

func TestTransition_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ride.TransitionError{From: ride.StateFinalized, Event: ride.EventAccept}, http.StatusConflict},
		{ride.ErrConflict, http.StatusConflict},
		{ride.ErrDriverRequired, http.StatusConflict},
		{ride.ErrUnknownEvent, http.StatusBadRequest},
		{ride.ErrForbidden, http.StatusForbidden},
		{ride.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", ride.ErrValidation), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rides := newFakeRides()
			rides.err = tt.err
			r := buildTestRouter(makeVerifier("cust1", ""), rides)
			w := doRequest(r, http.MethodPost, "/api/rides/r1/transitions/cancel", nil, "Bearer t")
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "boom")
			}
		})
	}
}

type fakePayments struct {
	handlers.PaymentService
	raw       [][]byte
	oversized [][]byte
	limit     int64
	checkErr  error
}

func (f *fakePayments) HandleCallback(_ context.Context, raw []byte) string {
	f.raw = append(f.raw, raw)
	return payment.Ack
}

func (f *fakePayments) HandleOversizedCallback(_ context.Context, head []byte, limit int64) string {
	f.oversized = append(f.oversized, head)
	f.limit = limit
	return payment.Ack
}

func (f *fakePayments) CheckStatus(_ context.Context, id types.ID) (*payment.Payment, error) {
	p := &payment.Payment{ID: id, Status: payment.StatusStarted}
	return p, f.checkErr
}

func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	svc := &fakePayments{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/payment/status", handlers.NewPaymentHandler(svc).Webhook)

	bodies := []struct {
		contentType string
		body        string
	}{
		{"application/json", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0}}}`},
		{"application/x-www-form-urlencoded", "Body=not+json"},
		{"application/json", ""},
	}
	for _, b := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/payment/status", strings.NewReader(b.body))
		req.Header.Set("Content-Type", b.contentType)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "success", w.Body.String())
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	}
	require.Len(t, svc.raw, 3)
	assert.Equal(t, "Body=not+json", string(svc.raw[1]))
}

func TestWebhook_OversizedBodyIsFlagged(t *testing.T) {
	svc := &fakePayments{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/payment/status", handlers.NewPaymentHandler(svc).Webhook)

	const limit = 1 << 20
	post := func(size int) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payment/status", strings.NewReader(strings.Repeat("a", size)))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post(limit + 500)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())
	assert.Empty(t, svc.raw, "an oversized body is never reconciled")
	require.Len(t, svc.oversized, 1)
	assert.Len(t, svc.oversized[0], limit)
	assert.Equal(t, int64(limit), svc.limit)

	post(limit)
	require.Len(t, svc.raw, 1, "a body at the limit is handled normally")
	assert.Len(t, svc.raw[0], limit)
}

func TestPaymentCheck_ProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      int
		retryable bool
	}{
		{"rejected", &payment.ProviderError{Op: "query", Kind: payment.ErrRejected, Message: "cancelled"}, http.StatusBadGateway, false},
		{"unavailable", &payment.ProviderError{Op: "query", Kind: payment.ErrProviderUnavailable, Message: "timeout"}, http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.POST("/payments/:id/check", handlers.NewPaymentHandler(&fakePayments{checkErr: tt.err}).Check)
			req := httptest.NewRequest(http.MethodPost, "/payments/p1/check", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			var body struct {
				Retryable bool `json:"retryable"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.retryable, body.Retryable)
		})
	}
}

func TestPaymentCheck_NoRemoteIDIsUnprocessable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/payments/:id/check", handlers.NewPaymentHandler(&fakePayments{checkErr: payment.ErrNoRemoteID}).Check)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments/p1/check", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
