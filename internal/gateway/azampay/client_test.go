package azampay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/gateway"
)

const testSecret = "whsec_test"

type fakeAzamPay struct {
	tokenCalls    atomic.Int32
	checkoutCalls atomic.Int32
	statusCalls   atomic.Int32
	failStatus    atomic.Int32
	lastCheckout  checkoutRequest
	txStatus      string
	txAmount      string
}

func (f *fakeAzamPay) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /AppRegistration/GenerateToken", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		var req tokenRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.ClientSecret != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"accessToken": "tok-1"}})
	})
	mux.HandleFunc("POST /azampay/mno/checkout", func(w http.ResponseWriter, r *http.Request) {
		f.checkoutCalls.Add(1)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastCheckout))
		json.NewEncoder(w).Encode(checkoutResponse{Success: true, TransactionID: "tx-" + f.lastCheckout.ExternalID})
	})
	mux.HandleFunc("GET /azampay/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.statusCalls.Add(1)
		if f.failStatus.Load() > 0 {
			f.failStatus.Add(-1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body := map[string]any{"transactionId": r.PathValue("id"), "status": f.txStatus}
		if f.txAmount != "" {
			body["amount"] = f.txAmount
		}
		json.NewEncoder(w).Encode(body)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeAzamPay) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{
		AuthURL:       srv.URL,
		APIURL:        srv.URL,
		AppName:       "boma",
		ClientID:      "id",
		ClientSecret:  "secret",
		WebhookSecret: testSecret,
		Timeout:       2 * time.Second,
		MaxRetries:    3,
	})
}

func TestInitiate(t *testing.T) {
	f := &fakeAzamPay{}
	c := newTestClient(t, f)

	ref, err := c.Initiate(context.Background(), domain.NewMoney(126_500, domain.CurrencyTZS), "Mpesa:0712 345 678", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-pay-1", ref)
	assert.Equal(t, checkoutRequest{
		AccountNumber: "255712345678",
		Amount:        "1265.00",
		Currency:      "TZS",
		ExternalID:    "pay-1",
		Provider:      "Mpesa",
	}, f.lastCheckout)

	_, err = c.Initiate(context.Background(), domain.NewMoney(1_000, domain.CurrencyTZS), "0712345678", "pay-2")
	require.NoError(t, err)
	assert.Equal(t, "Tigo", f.lastCheckout.Provider)
	assert.Equal(t, int32(1), f.tokenCalls.Load(), "token is cached between calls")
}

func TestInitiate_TokenRefreshAfterExpiry(t *testing.T) {
	f := &fakeAzamPay{}
	c := newTestClient(t, f)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Initiate(context.Background(), domain.NewMoney(1_000, domain.CurrencyTZS), "0712345678", "a")
	require.NoError(t, err)

	now = now.Add(56 * time.Minute)
	_, err = c.Initiate(context.Background(), domain.NewMoney(1_000, domain.CurrencyTZS), "0712345678", "b")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestInitiate_RejectsBadPayer(t *testing.T) {
	f := &fakeAzamPay{}
	c := newTestClient(t, f)

	tests := []struct {
		name  string
		payer string
	}{
		{"unknown provider", "Vodacom:0712345678"},
		{"too short", "0712"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Initiate(context.Background(), domain.NewMoney(1_000, domain.CurrencyTZS), tc.payer, "x")
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Zero(t, f.checkoutCalls.Load())
}

func TestInitiate_BadCredentials(t *testing.T) {
	f := &fakeAzamPay{}
	c := newTestClient(t, f)
	c.cfg.ClientSecret = "wrong"

	_, err := c.Initiate(context.Background(), domain.NewMoney(1_000, domain.CurrencyTZS), "0712345678", "x")
	require.ErrorIs(t, err, domain.ErrPaymentGateway)
	assert.Equal(t, int32(1), f.tokenCalls.Load(), "4xx token responses are not retried")
}

func TestParseWebhook(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testSecret})
	body := []byte(`{"transactionId":"tx-9","externalId":"pay-9","amount":"1265.00","status":"success","message":"ok"}`)

	n, err := c.ParseWebhook(body, gateway.Sign(body, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "tx-9", n.ExternalRef)
	assert.Equal(t, domain.PaymentStatusSuccess, n.Status)
	assert.Equal(t, domain.NewMoney(126_500, domain.CurrencyTZS), n.Amount)

	_, err = c.ParseWebhook(body, gateway.Sign(body, "nope"))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	bad := []byte(`{"transactionId":"tx-9","status":"weird"}`)
	_, err = c.ParseWebhook(bad, gateway.Sign(bad, testSecret))
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestQueryStatus(t *testing.T) {
	f := &fakeAzamPay{txStatus: "failed"}
	c := newTestClient(t, f)
	f.failStatus.Store(2)

	rep, err := c.QueryStatus(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, rep.Status)
	assert.Equal(t, int32(3), f.statusCalls.Load(), "5xx responses are retried")
	assert.True(t, rep.Amount.IsZero())

	f.txStatus, f.txAmount = "success", "1265.00"
	rep, err = c.QueryStatus(context.Background(), "tx-2")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, rep.Status)
	assert.Equal(t, domain.NewMoney(126_500, domain.CurrencyTZS), rep.Amount)

	_, err = c.QueryStatus(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormalizeMSISDN(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0712345678", "255712345678"},
		{"+255 712 345 678", "255712345678"},
		{"712-345-678", "255712345678"},
		{"255712345678", "255712345678"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeMSISDN(tc.in), tc.in)
	}
}
