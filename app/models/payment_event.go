package models

import "time"

// Payment event statuses as delivered by the gateway and stored in the ledger.
const (
	PaymentStatusPaid   = "Paid"
	PaymentStatusCancel = "Cancel"
)

// PaymentEvent is one immutable row of the subscription payment ledger.
//
// Rows are append-only: a cancellation is recorded as a new row with the
// negated amount and the period fields of the paid row it reverses, never as
// an update. For a given TransactionKey the latest row by CreatedAt is
// authoritative for status.
type PaymentEvent struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	TransactionKey string    `gorm:"type:varchar(191);not null;index:idx_payment_events_tx_created,priority:1" json:"transaction_key"`
	CustomerID     string    `gorm:"type:varchar(191);not null;index" json:"customer_id"`
	Amount         int64     `gorm:"not null" json:"amount"`
	Status         string    `gorm:"type:varchar(16);not null;index" json:"status"`
	StartAt        time.Time `gorm:"type:datetime(3);not null" json:"start_at"`
	EndAt          time.Time `gorm:"type:datetime(3);not null" json:"end_at"`
	EndGraceAt     time.Time `gorm:"type:datetime(3);not null" json:"end_grace_at"`
	NextScheduleAt time.Time `gorm:"type:datetime(3);not null" json:"next_schedule_at"`
	NextScheduleID string    `gorm:"type:varchar(191);not null" json:"next_schedule_id"`
	CreatedAt      time.Time `gorm:"type:datetime(3);autoCreateTime:milli;index:idx_payment_events_tx_created,priority:2" json:"created_at"`
}

// TableName specifies the table name for the PaymentEvent model.
func (PaymentEvent) TableName() string {
	return "payment_events"
}

// Reversal builds the Cancel row that reverses this event. The amount is
// negated and the period and schedule fields are copied unchanged so the
// reversal stays correlated with the schedule registered at Paid time.
func (e *PaymentEvent) Reversal() *PaymentEvent {
	return &PaymentEvent{
		TransactionKey: e.TransactionKey,
		CustomerID:     e.CustomerID,
		Amount:         -e.Amount,
		Status:         PaymentStatusCancel,
		StartAt:        e.StartAt,
		EndAt:          e.EndAt,
		EndGraceAt:     e.EndGraceAt,
		NextScheduleAt: e.NextScheduleAt,
		NextScheduleID: e.NextScheduleID,
	}
}

// IsActiveAt reports whether this row represents a subscription period that
// covers the given instant, grace period included.
func (e *PaymentEvent) IsActiveAt(now time.Time) bool {
	return e.Status == PaymentStatusPaid &&
		!now.Before(e.StartAt) &&
		!now.After(e.EndGraceAt)
}
