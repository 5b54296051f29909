package portone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HyunwooPark/ZineHub/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.portone.io"

// Client issues authenticated calls against the PortOne V2 REST API.
// No call is retried; every failure is surfaced synchronously as *APIError
// so the orchestrating step decides the policy.
type Client struct {
	APISecret string
	BaseURL   string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from PORTONE_API_SECRET and
// PORTONE_API_BASE_URL. An empty secret is a configuration error the
// caller must check via Configured before use.
func NewClientFromEnv() *Client {
	return &Client{
		APISecret: strings.TrimSpace(env.GetEnv("PORTONE_API_SECRET", "")),
		BaseURL:   strings.TrimRight(env.GetEnv("PORTONE_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured reports whether the server-held API secret is present.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.APISecret) != ""
}

// GetPayment queries payment details for an external payment id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New("payment id is required")
	}

	var out Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChargeBillingKey charges a stored payment method under a caller-chosen
// payment id.
func (c *Client) ChargeBillingKey(ctx context.Context, paymentID string, in ChargeRequest) (*ChargeResult, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New("payment id is required")
	}
	if strings.TrimSpace(in.BillingKey) == "" {
		return nil, errors.New("billing key is required")
	}
	currency := in.Currency
	if currency == "" {
		currency = "KRW"
	}

	body := map[string]interface{}{
		"billingKey": in.BillingKey,
		"orderName":  in.OrderName,
		"amount":     Amount{Total: in.Amount},
		"customer":   Customer{ID: in.CustomerID},
		"currency":   currency,
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/billing-key", body, &raw); err != nil {
		return nil, err
	}
	return &ChargeResult{PaymentID: paymentID, Raw: raw}, nil
}

// CreateSchedule registers a future charge under scheduleID using the
// billing details of a completed payment.
func (c *Client) CreateSchedule(ctx context.Context, scheduleID string, payment *Payment, runAt time.Time) (*Schedule, error) {
	if strings.TrimSpace(scheduleID) == "" {
		return nil, errors.New("schedule id is required")
	}
	if payment == nil {
		return nil, errors.New("payment details are required")
	}

	body := map[string]interface{}{
		"payment": map[string]interface{}{
			"billingKey": payment.BillingKey,
			"orderName":  payment.OrderName,
			"customer":   payment.Customer,
			"amount":     payment.Amount,
			"currency":   "KRW",
		},
		"timeToPay": runAt.UTC().Format(time.RFC3339),
	}

	var out struct {
		Schedule Schedule `json:"schedule"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(scheduleID)+"/schedule", body, &out); err != nil {
		return nil, err
	}
	if out.Schedule.PaymentID == "" {
		out.Schedule.PaymentID = scheduleID
	}
	return &out.Schedule, nil
}

// GetSchedules lists pending schedules for a billing key inside a time
// window. The provider expects the filter as a JSON body on GET.
func (c *Client) GetSchedules(ctx context.Context, billingKey string, from, until time.Time) ([]Schedule, error) {
	if strings.TrimSpace(billingKey) == "" {
		return nil, errors.New("billing key is required")
	}

	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"billingKey": billingKey,
			"from":       from.UTC().Format(time.RFC3339),
			"until":      until.UTC().Format(time.RFC3339),
		},
	}

	var out struct {
		Items []Schedule `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/payment-schedules", body, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CancelSchedules revokes pending schedules by their gateway-side ids.
func (c *Client) CancelSchedules(ctx context.Context, scheduleIDs []string) error {
	if len(scheduleIDs) == 0 {
		return errors.New("at least one schedule id is required")
	}

	body := map[string]interface{}{
		"scheduleIds": scheduleIDs,
	}
	return c.do(ctx, http.MethodDelete, "/payment-schedules", body, nil)
}

// CancelPayment reverses a completed charge at the gateway.
func (c *Client) CancelPayment(ctx context.Context, paymentID, reason string) error {
	if strings.TrimSpace(paymentID) == "" {
		return errors.New("payment id is required")
	}
	if strings.TrimSpace(reason) == "" {
		reason = "requested by subscriber"
	}

	body := map[string]interface{}{
		"reason": reason,
	}
	return c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/cancel", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "PortOne "+c.APISecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &APIError{StatusCode: http.StatusBadGateway, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, RawBody: string(raw)}
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			apiErr.Message = detail.Message
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
