// file: client/http_settlement_test.go

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPSettlementClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPSettlementClient(srv.URL, "USDC", "pt-BR", 2*time.Second, func() string { return "tok-123" })
}

func TestHTTPSettlementClient_CreateDeposit(t *testing.T) {
	t.Run("instrument returned", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/stellar/pix-deposit", r.URL.Path)
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			assert.Equal(t, "pay-1", r.Header.Get("Idempotency-Key"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "USDC", body["asset_code"])
			assert.Equal(t, "GABC", body["account"])
			assert.Equal(t, "100.00", body["amount"])
			assert.Equal(t, "PIX", body["payment_method"])
			assert.Equal(t, "pt-BR", body["lang"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"dep-9","type":"pix","pixKey":"000201abc","pixQRCode":"iVBOR","expires_at":"2026-10-15T12:15:00Z"}`))
		})

		res, err := c.CreateDeposit(context.Background(), CreateDepositRequest{
			AccountKey:     "GABC",
			Amount:         decimal.NewFromInt(100),
			IdempotencyKey: "pay-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "dep-9", res.Reference)
		assert.Equal(t, "000201abc", res.Code)
		assert.Equal(t, "iVBOR", res.ScanPayload)
		assert.False(t, res.InfoNeeded)
		assert.Equal(t, time.Date(2026, 10, 15, 12, 15, 0, 0, time.UTC), res.ExpiresAt.UTC())
	})

	t.Run("additional info needed", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"dep-10","type":"interactive_customer_info_needed","url":"https://anchor/kyc"}`))
		})

		res, err := c.CreateDeposit(context.Background(), CreateDepositRequest{AccountKey: "GABC", Amount: decimal.NewFromInt(50)})
		require.NoError(t, err)
		assert.True(t, res.InfoNeeded)
		assert.Equal(t, "https://anchor/kyc", res.InteractiveURL)
		assert.True(t, res.ExpiresAt.IsZero())
	})

	t.Run("client error maps to validation", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"amount below anchor minimum"}`))
		})

		_, err := c.CreateDeposit(context.Background(), CreateDepositRequest{AccountKey: "GABC", Amount: decimal.NewFromInt(1)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		var se *ServiceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "amount below anchor minimum", se.Message)
	})

	t.Run("server error maps to unavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := c.CreateDeposit(context.Background(), CreateDepositRequest{AccountKey: "GABC", Amount: decimal.NewFromInt(10)})
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	})
}

func TestHTTPSettlementClient_GetDepositStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/api/stellar/pix-status/done":
			_, _ = w.Write([]byte(`{"status":"completed","stellar_transaction_id":"tx-1"}`))
		case "/api/stellar/pix-status/weird":
			_, _ = w.Write([]byte(`{"status":"pending_anchor"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"error"}`))
		}
	})

	res, err := c.GetDepositStatus(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "tx-1", res.SettlementReference)

	res, err = c.GetDepositStatus(context.Background(), "weird")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)

	res, err = c.GetDepositStatus(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
}

func TestHTTPSettlementClient_CreateWithdrawal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stellar/pix-withdraw", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "50.00", body["amount"])
		assert.Equal(t, "user@pix.com", body["pix_key"])
		assert.Equal(t, "signed.intent", body["intent"])
		_, _ = w.Write([]byte(`{"id":"wd-1"}`))
	})

	res, err := c.CreateWithdrawal(context.Background(), CreateWithdrawalRequest{
		AccountKey:  "GABC",
		Amount:      decimal.NewFromInt(50),
		Destination: "user@pix.com",
		Intent:      "signed.intent",
	})
	require.NoError(t, err)
	assert.Equal(t, "wd-1", res.Reference)
}

func TestHTTPSettlementClient_TransportFailure(t *testing.T) {
	c := NewHTTPSettlementClient("http://127.0.0.1:1", "USDC", "pt-BR", 500*time.Millisecond, nil)

	_, err := c.GetDepositStatus(context.Background(), "x")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
