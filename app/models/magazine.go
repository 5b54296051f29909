package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Magazine represents one issue in the subscription catalog.
type Magazine struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title" validate:"required,min=3,max=255"`
	Category    string         `gorm:"type:varchar(100);index" json:"category" validate:"required,max=100"`
	Description string         `gorm:"type:text" json:"description" validate:"required"`
	ImageURL    string         `gorm:"type:varchar(500)" json:"image_url" validate:"omitempty,url"`
	Tags        string         `gorm:"type:varchar(500)" json:"tags"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Magazine model.
func (Magazine) TableName() string {
	return "magazines"
}

func (m *Magazine) Validate() error {
	v := validator.New()
	return v.Struct(m)
}
