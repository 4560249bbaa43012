package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"debtster_portal/internal/ports"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/clientcredentials"
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// Client talks to the PayPal Orders v2 API. The oauth2 transport fetches and
// refreshes the bearer token.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(ctx context.Context, cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
	}
	return &Client{baseURL: base, http: cc.Client(ctx)}
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      amount `json:"amount"`
}

type createOrderBody struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Description string `json:"description"`
		Amount      amount `json:"amount"`
		Payments    struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount amount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (c *Client) CreateOrder(ctx context.Context, req ports.OrderRequest) (ports.Order, error) {
	body := createOrderBody{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.ReferenceID,
			Description: req.Description,
			Amount: amount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.StringFixed(2),
			},
		}},
	}

	var out orderResponse
	if _, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		log.Printf("[PAYPAL][ORDER][ERR] %v", err)
		return ports.Order{}, err
	}
	log.Printf("[PAYPAL][ORDER][OK] id=%s status=%s", out.ID, out.Status)

	return ports.Order{
		ID:          out.ID,
		Status:      out.Status,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	}, nil
}

func (c *Client) CaptureOrder(ctx context.Context, orderID string) (ports.Capture, error) {
	if strings.TrimSpace(orderID) == "" {
		return ports.Capture{}, fmt.Errorf("empty order id")
	}

	var out orderResponse
	raw, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", nil, &out)
	if err != nil {
		log.Printf("[PAYPAL][CAPTURE][ERR] order=%s %v", orderID, err)
		return ports.Capture{}, err
	}

	capture := ports.Capture{
		TransactionID: out.ID,
		OrderID:       out.ID,
		Status:        out.Status,
		Raw:           raw,
	}
	if len(out.PurchaseUnits) > 0 {
		pu := out.PurchaseUnits[0]
		if len(pu.Payments.Captures) > 0 {
			cp := pu.Payments.Captures[0]
			if cp.ID != "" {
				capture.TransactionID = cp.ID
			}
			if cp.Status != "" {
				capture.Status = cp.Status
			}
			capture.Amount = parseAmount(cp.Amount.Value)
			capture.Currency = cp.Amount.CurrencyCode
		} else {
			capture.Amount = parseAmount(pu.Amount.Value)
			capture.Currency = pu.Amount.CurrencyCode
		}
	}

	log.Printf("[PAYPAL][CAPTURE][OK] order=%s transaction=%s status=%s amount=%s",
		orderID, capture.TransactionID, capture.Status, capture.Amount.StringFixed(2))
	return capture, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paypal %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode paypal response: %w", err)
		}
	}
	return raw, nil
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
