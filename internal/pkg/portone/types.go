package portone

import (
	"encoding/json"
	"fmt"
	"time"
)

// Customer identifies the paying subscriber at the gateway.
type Customer struct {
	ID string `json:"id"`
}

// Amount carries a charge total in minor currency units (KRW has none).
type Amount struct {
	Total int64 `json:"total"`
}

// Payment is the subset of the gateway's payment record the application
// consumes: enough to persist a ledger event and to register or locate the
// next recurring schedule.
type Payment struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"`
	BillingKey string   `json:"billingKey"`
	OrderName  string   `json:"orderName"`
	Currency   string   `json:"currency"`
	Customer   Customer `json:"customer"`
	Amount     Amount   `json:"amount"`
}

// ChargeRequest is the input for a billing-key charge.
type ChargeRequest struct {
	BillingKey string
	OrderName  string
	Amount     int64
	CustomerID string
	Currency   string
}

// ChargeResult is the outcome of a billing-key charge. Raw keeps the
// provider response for the API caller; PaymentID echoes the id the charge
// was created under.
type ChargeResult struct {
	PaymentID string
	Raw       json.RawMessage
}

// Schedule is a gateway-side record instructing it to attempt a future
// charge. PaymentID is the externally supplied correlation id (our
// next_schedule_id), distinct from the gateway's own ID.
type Schedule struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"paymentId"`
	Status    string    `json:"status"`
	TimeToPay time.Time `json:"timeToPay"`
}

// APIError is a non-2xx gateway response or transport-level failure mapped
// to a synchronous error. Callers decide per call site whether it is fatal
// or degrades to a warning.
type APIError struct {
	StatusCode int
	Message    string
	RawBody    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portone: request failed: status=%d message=%s", e.StatusCode, e.Message)
}
