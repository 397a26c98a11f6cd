// Package gateway talks to the payment provider that holds students' payments.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// HTTPClient calls the provider's refund API
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type refundRequest struct {
	PaymentID string `json:"paymentId"`
	Reason    string `json:"reason,omitempty"`
}

type refundResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// NewHTTPClient constructs a client with baseURL and API key
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Refund refunds the payment in full. Repeating the call with the same
// idempotency key returns the refund created by the first call.
func (c *HTTPClient) Refund(ctx context.Context, paymentID, reason, idempotencyKey string) (*model.RefundReceipt, error) {
	data, err := json.Marshal(refundRequest{PaymentID: paymentID, Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("marshal refund request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/refunds", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refund request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read refund response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("refund rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out refundResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode refund response: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("refund response without id")
	}
	if out.Status == "failed" || out.Status == "canceled" {
		return nil, fmt.Errorf("refund %s ended with status %s", out.ID, out.Status)
	}

	return &model.RefundReceipt{Reference: out.ID, Amount: out.Amount}, nil
}
