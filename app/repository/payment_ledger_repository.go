package repository

import (
	"github.com/HyunwooPark/ZineHub/app/models"
	"gorm.io/gorm"
)

// paymentLedgerRepository implements the PaymentLedgerRepository interface
type paymentLedgerRepository struct {
	db *gorm.DB
}

// NewPaymentLedgerRepository creates a payment ledger repository backed by GORM.
func NewPaymentLedgerRepository(db *gorm.DB) PaymentLedgerRepository {
	return &paymentLedgerRepository{db: db}
}

// Insert appends one event row to the ledger.
func (r *paymentLedgerRepository) Insert(event *models.PaymentEvent) error {
	return r.db.Create(event).Error
}

// LatestByTransactionKey returns the most recent row for a transaction key.
// CreatedAt is the version key; ID breaks ties between same-millisecond rows.
func (r *paymentLedgerRepository) LatestByTransactionKey(transactionKey string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	err := r.db.Where("transaction_key = ?", transactionKey).
		Order("created_at DESC, id DESC").
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListByCustomer returns a subscriber's full event history, newest first.
func (r *paymentLedgerRepository) ListByCustomer(customerID string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.Where("customer_id = ?", customerID).
		Order("created_at DESC, id DESC").
		Find(&events).Error
	return events, err
}

// ExistsByTransactionKey checks for any row with the given transaction key.
// Used as the optional duplicate-delivery guard on the Paid path.
func (r *paymentLedgerRepository) ExistsByTransactionKey(transactionKey string) (bool, error) {
	var count int64
	err := r.db.Model(&models.PaymentEvent{}).
		Where("transaction_key = ?", transactionKey).
		Count(&count).Error
	return count > 0, err
}
