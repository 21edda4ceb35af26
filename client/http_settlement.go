package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/logger"
)

const infoNeededType = "interactive_customer_info_needed"

// TokenSource returns the bearer token for the current session, or "".
type TokenSource func() string

// HTTPSettlementClient talks to the anchor backend over its JSON API.
type HTTPSettlementClient struct {
	baseURL   string
	assetCode string
	lang      string
	token     TokenSource
	client    *http.Client
}

// NewHTTPSettlementClient creates a client for the rail at baseURL.
func NewHTTPSettlementClient(baseURL, assetCode, lang string, timeout time.Duration, token TokenSource) *HTTPSettlementClient {
	if token == nil {
		token = func() string { return "" }
	}
	return &HTTPSettlementClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		assetCode: assetCode,
		lang:      lang,
		token:     token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type depositBody struct {
	AssetCode     string `json:"asset_code"`
	Account       string `json:"account"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	PaymentMethod string `json:"payment_method"`
	Lang          string `json:"lang"`
}

type depositResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	PixKey    string `json:"pixKey,omitempty"`
	PixQRCode string `json:"pixQRCode,omitempty"`
	Amount    string `json:"amount,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type statusResponse struct {
	Status               string `json:"status"`
	StellarTransactionID string `json:"stellar_transaction_id,omitempty"`
}

type withdrawBody struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
	PixKey  string `json:"pix_key"`
	Intent  string `json:"intent,omitempty"`
}

type withdrawResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// CreateDeposit requests a PIX instrument for a deposit.
func (c *HTTPSettlementClient) CreateDeposit(ctx context.Context, req CreateDepositRequest) (*CreateDepositResult, error) {
	body := depositBody{
		AssetCode:     c.assetCode,
		Account:       req.AccountKey,
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		PaymentMethod: "PIX",
		Lang:          c.lang,
	}

	var resp depositResponse
	if err := c.do(ctx, http.MethodPost, "/api/stellar/pix-deposit", req.IdempotencyKey, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &ServiceError{Kind: ErrServiceUnavailable, Message: "response without deposit id"}
	}

	result := &CreateDepositResult{
		Reference:      resp.ID,
		Code:           resp.PixKey,
		ScanPayload:    resp.PixQRCode,
		InteractiveURL: resp.URL,
		InfoNeeded:     resp.Type == infoNeededType,
	}
	if resp.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt)
		if err != nil {
			logger.Log.WithError(err).WithField("expires_at", resp.ExpiresAt).Warn("Ignoring unparsable deposit expiry")
		} else {
			result.ExpiresAt = expiresAt
		}
	}
	return result, nil
}

// GetDepositStatus fetches the rail's current status for a deposit.
func (c *HTTPSettlementClient) GetDepositStatus(ctx context.Context, reference string) (*DepositStatusResult, error) {
	var resp statusResponse
	path := "/api/stellar/pix-status/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}

	status := DepositStatus(resp.Status)
	switch status {
	case StatusCompleted, StatusError:
	default:
		status = StatusPending
	}
	return &DepositStatusResult{Status: status, SettlementReference: resp.StellarTransactionID}, nil
}

// CreateWithdrawal submits a PIX payout.
func (c *HTTPSettlementClient) CreateWithdrawal(ctx context.Context, req CreateWithdrawalRequest) (*CreateWithdrawalResult, error) {
	body := withdrawBody{
		Account: req.AccountKey,
		Amount:  req.Amount.StringFixed(2),
		PixKey:  req.Destination,
		Intent:  req.Intent,
	}

	var resp withdrawResponse
	if err := c.do(ctx, http.MethodPost, "/api/stellar/pix-withdraw", req.IdempotencyKey, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &ServiceError{Kind: ErrServiceUnavailable, Message: "response without withdrawal id"}
	}
	return &CreateWithdrawalResult{Reference: resp.ID}, nil
}

func (c *HTTPSettlementClient) do(ctx context.Context, method, path, idempotencyKey string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	log := logger.Log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
	})

	resp, err := c.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("Settlement request failed")
		return &ServiceError{Kind: ErrServiceUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		kind := ErrServiceUnavailable
		if resp.StatusCode < http.StatusInternalServerError {
			kind = ErrValidation
		}
		log.WithField("status_code", resp.StatusCode).Warn("Settlement request rejected")
		return &ServiceError{Kind: kind, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{Kind: ErrServiceUnavailable, StatusCode: resp.StatusCode, Message: "failed to decode response: " + err.Error()}
	}
	return nil
}
