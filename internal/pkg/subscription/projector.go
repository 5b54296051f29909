package subscription

import (
	"time"

	"github.com/HyunwooPark/ZineHub/app/models"
)

// Subscriber states derived from the ledger.
const (
	StatusSubscribed = "subscribed"
	StatusFree       = "free"
)

// LedgerReader is the read-only slice of the ledger the projector needs.
type LedgerReader interface {
	ListByCustomer(customerID string) ([]models.PaymentEvent, error)
}

// Status is the projected subscription state for one subscriber.
type Status struct {
	Subscribed     bool       `json:"subscribed"`
	Status         string     `json:"status"`
	TransactionKey string     `json:"transaction_key,omitempty"`
	EndGraceAt     *time.Time `json:"end_grace_at,omitempty"`
}

// Projector derives the current subscriber state from the event history.
// It only reads the ledger; it shares no state with the reconciler.
type Projector struct {
	Ledger LedgerReader
	Now    func() time.Time
}

// NewProjector creates a projector over the given ledger.
func NewProjector(ledger LedgerReader) *Projector {
	return &Projector{Ledger: ledger, Now: time.Now}
}

// Project computes the subscriber's state: group the history by transaction
// key, keep the latest row per key, and look for a Paid row whose period
// (grace included) covers now. TransactionKey identifies the charge a
// cancellation would target.
//
// When several transaction keys are active at once the first match in
// newest-first ledger order wins. Which of the concurrently-active
// subscriptions should win is an unresolved business rule; the pick here is
// arbitrary but stable.
func (p *Projector) Project(customerID string) (*Status, error) {
	events, err := p.Ledger.ListByCustomer(customerID)
	if err != nil {
		return nil, err
	}

	now := p.Now()
	seen := make(map[string]struct{}, len(events))

	// events arrive newest first, so the first row per key is the
	// authoritative one.
	for i := range events {
		e := &events[i]
		if _, ok := seen[e.TransactionKey]; ok {
			continue
		}
		seen[e.TransactionKey] = struct{}{}

		if e.IsActiveAt(now) {
			endGrace := e.EndGraceAt
			return &Status{
				Subscribed:     true,
				Status:         StatusSubscribed,
				TransactionKey: e.TransactionKey,
				EndGraceAt:     &endGrace,
			}, nil
		}
	}

	return &Status{Subscribed: false, Status: StatusFree}, nil
}
