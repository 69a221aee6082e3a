package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bill is a utility or service bill issued for an apartment
type Bill struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ApartmentID  uint            `gorm:"not null;index" json:"apartment_id"`
	BillType     string          `gorm:"size:50;not null" json:"bill_type"`
	Amount       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Date         time.Time       `json:"date"`
	CreatedByID  uint            `gorm:"not null" json:"created_by"`
	FileURL      *string         `gorm:"size:500" json:"file_url"`
	FilePublicID *string         `gorm:"size:255" json:"-"`
	Paid         bool            `gorm:"default:false;index" json:"paid"`
	PaidByID     *uint           `json:"paid_by,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Bill) TableName() string {
	return "bills"
}

func (b *Bill) HasFile() bool {
	return b.FileURL != nil && *b.FileURL != ""
}
