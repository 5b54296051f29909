package repository

import (
	"github.com/HyunwooPark/ZineHub/app/models"
	"gorm.io/gorm"
)

// magazineRepository implements the MagazineRepository interface
type magazineRepository struct {
	db *gorm.DB
}

// NewMagazineRepository creates a new magazine repository instance.
func NewMagazineRepository(db *gorm.DB) MagazineRepository {
	return &magazineRepository{db: db}
}

// Create creates a new magazine in the database.
func (r *magazineRepository) Create(magazine *models.Magazine) error {
	return r.db.Create(magazine).Error
}

// GetByID retrieves a magazine by its ID.
func (r *magazineRepository) GetByID(id uint64) (*models.Magazine, error) {
	var magazine models.Magazine
	err := r.db.First(&magazine, id).Error
	if err != nil {
		return nil, err
	}
	return &magazine, nil
}

// List retrieves up to limit magazines, newest first.
func (r *magazineRepository) List(limit int) ([]models.Magazine, error) {
	var magazines []models.Magazine
	err := r.db.Order("created_at DESC").Limit(limit).Find(&magazines).Error
	return magazines, err
}

// Count returns the total number of magazines.
func (r *magazineRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Magazine{}).Count(&count).Error
	return count, err
}
