package paypal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"debtster_portal/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			http.Error(w, "bad client", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		var body createOrderBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Intent != "CAPTURE" || len(body.PurchaseUnits) != 1 || body.PurchaseUnits[0].Amount.Value != "40.00" {
			http.Error(w, "unexpected body", http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"ORDER-1","status":"CREATED"}`)
	})
	mux.HandleFunc("POST /v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"ORDER-1","status":"COMPLETED",
			"purchase_units":[{"payments":{"captures":[
				{"id":"CAP-9","status":"COMPLETED","amount":{"currency_code":"USD","value":"40.00"}}
			]}}]}`)
	})
	mux.HandleFunc("POST /v2/checkout/orders/DECLINED/capture", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"name":"UNPROCESSABLE_ENTITY"}`, http.StatusUnprocessableEntity)
	})
	return httptest.NewServer(mux)
}

func TestClient_CreateAndCapture(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	ctx := context.Background()
	c := New(ctx, Config{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"})

	order, err := c.CreateOrder(ctx, ports.OrderRequest{
		Amount:      decimal.RequireFromString("40"),
		Currency:    "USD",
		Description: "Payment for Loan #L-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", order.ID)
	assert.Equal(t, "CREATED", order.Status)

	capture, err := c.CaptureOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "CAP-9", capture.TransactionID)
	assert.Equal(t, "ORDER-1", capture.OrderID)
	assert.Equal(t, ports.CaptureStatusCompleted, capture.Status)
	assert.True(t, capture.Amount.Equal(decimal.RequireFromString("40")))
	assert.NoError(t, capture.Validate(decimal.RequireFromString("40.00"), "USD"))
	assert.NotEmpty(t, capture.Raw)
}

func TestClient_CaptureDeclined(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	ctx := context.Background()
	c := New(ctx, Config{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"})

	_, err := c.CaptureOrder(ctx, "DECLINED")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
}

func TestClient_CaptureEmptyOrder(t *testing.T) {
	c := New(context.Background(), Config{BaseURL: "http://127.0.0.1:0"})
	_, err := c.CaptureOrder(context.Background(), " ")
	assert.Error(t, err)
}
