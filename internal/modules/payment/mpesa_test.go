package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twende/internal/config"
)

func newDaraja(t *testing.T, handler http.HandlerFunc) (*MpesaClient, *int32) {
	t.Helper()
	var oauthCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&oauthCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok123","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewMpesaClient(config.MpesaConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "pass",
		TimeoutURL:     "https://example.test/timeout",
		Timeout:        5 * time.Second,
	})
	c.now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC) }
	return c, &oauthCalls
}

func TestMpesaInitiate(t *testing.T) {
	var got map[string]any
	c, oauthCalls := newDaraja(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mpesa/stkpush/v1/processrequest", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_191220191020363925","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing"}`))
	})

	req := InitiateRequest{Phone: "0712345678", Amount: 231, CallbackURL: "https://example.test/cb", Reference: "TW1234", Description: "ride"}
	res, err := c.Initiate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Equal(t, "ws_CO_191220191020363925", res.RequestID)
	assert.Contains(t, string(res.Body), "ws_CO_191220191020363925")

	assert.Equal(t, "254712345678", got["PhoneNumber"])
	assert.Equal(t, "20240501083000", got["Timestamp"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("174379pass20240501083000")), got["Password"])
	assert.Equal(t, float64(231), got["Amount"])
	assert.Equal(t, "TW1234", got["AccountReference"])

	_, err = c.Initiate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(oauthCalls), "token is cached")
}

func TestMpesaInitiateRejected(t *testing.T) {
	c, _ := newDaraja(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`))
	})
	res, err := c.Initiate(context.Background(), InitiateRequest{Phone: "1", Amount: 1})
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, "Bad Request - Invalid PhoneNumber", res.Error)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestMpesaQuery(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus string
		wantError  string
		wantErr    bool
	}{
		{"paid", 200, `{"ResponseCode":"0","ResultCode":"0","ResultDesc":"The service request is processed successfully."}`, StatusPaid, "", false},
		{"cancelled", 200, `{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`, "", "Request cancelled by user", false},
		{"pending", 500, `{"requestId":"1","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`, "Pending", "", false},
		{"unreadable", 502, `<html>bad gateway</html>`, "", "", true},
		{"server error", 503, `{}`, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newDaraja(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/mpesa/stkpushquery/v1/query", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			res, err := c.Query(context.Background(), "ws_CO_1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantError, res.Error)
		})
	}
}

func TestMpesaBadCredentials(t *testing.T) {
	c, _ := newDaraja(t, func(w http.ResponseWriter, r *http.Request) {})
	c.cfg.ConsumerSecret = "wrong"
	_, err := c.TransactionStatus(context.Background(), "0712345678", "ws_CO_1", "https://example.test/result")
	assert.ErrorIs(t, err, errUnauthorized)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "254712345678", NormalizePhone("0712345678"))
	assert.Equal(t, "254712345678", NormalizePhone("+254712345678"))
	assert.Equal(t, "254712345678", NormalizePhone(" 254712345678 "))
}
