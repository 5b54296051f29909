package repository

import (
	"github.com/HyunwooPark/ZineHub/app/models"
)

// PaymentLedgerRepository defines the append-only payment ledger operations.
// There is deliberately no update or delete: cancellations are new rows.
type PaymentLedgerRepository interface {
	Insert(event *models.PaymentEvent) error
	LatestByTransactionKey(transactionKey string) (*models.PaymentEvent, error)
	ListByCustomer(customerID string) ([]models.PaymentEvent, error)
	ExistsByTransactionKey(transactionKey string) (bool, error)
}

// MagazineRepository defines the catalog database operations.
type MagazineRepository interface {
	Create(magazine *models.Magazine) error
	GetByID(id uint64) (*models.Magazine, error)
	List(limit int) ([]models.Magazine, error)
	Count() (int64, error)
}
