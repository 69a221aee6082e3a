package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Apartment is a listed property. Only ownership matters to the signing flow.
type Apartment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OwnerID    uint      `gorm:"not null;index" json:"owner_id"`
	Street     string    `gorm:"size:255" json:"street"`
	City       string    `gorm:"size:100" json:"city"`
	PostalCode string    `gorm:"size:20" json:"postal_code"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Apartment) TableName() string {
	return "apartments"
}

// Room is a rentable unit. RenterID is set exactly when the room's contract is SIGNED.
type Room struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ApartmentID   uint            `gorm:"not null;index" json:"apartment_id"`
	Description   string          `gorm:"type:text" json:"description"`
	PricePerMonth decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price_per_month"`
	RenterID      *uint           `gorm:"index" json:"renter_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Room) TableName() string {
	return "rooms"
}
