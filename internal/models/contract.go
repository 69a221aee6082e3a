package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ContractStatus string

const (
	ContractStatusDraft   ContractStatus = "DRAFT"
	ContractStatusSent    ContractStatus = "SENT"
	ContractStatusSigned  ContractStatus = "SIGNED"
	ContractStatusDeleted ContractStatus = "DELETED"
)

// Contract is a lease agreement for a single room.
//
// RoomID is unique so a room holds at most one live contract; deleting a
// contract keeps the row but clears RoomID.
type Contract struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	RoomID             *uint           `gorm:"uniqueIndex" json:"room_id"`
	OwnerID            uint            `gorm:"not null;index" json:"owner_id"`
	Status             ContractStatus  `gorm:"size:10;not null;default:DRAFT;index" json:"status"`
	StartDate          time.Time       `gorm:"not null" json:"start_date"`
	EndDate            time.Time       `gorm:"not null" json:"end_date"`
	RentAmount         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"rent_amount"`
	DepositAmount      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"deposit_amount"`
	TermsAndConditions string          `gorm:"type:text" json:"terms_and_conditions"`
	FileURL            *string         `gorm:"size:500" json:"file_url"`
	FilePublicID       *string         `gorm:"size:255" json:"-"`
	SignatureRequestID *string         `gorm:"size:100;uniqueIndex" json:"signature_request_id"`
	SignerID           *uint           `gorm:"index" json:"signer_id"`
	SignerSignatureID  *string         `gorm:"size:100" json:"-"`
	SignedAt           *time.Time      `json:"signed_at"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (Contract) TableName() string {
	return "contracts"
}

// HasFile reports whether a document is attached
func (c *Contract) HasFile() bool {
	return c.FileURL != nil && *c.FileURL != ""
}

// Open reports whether the contract can still be negotiated, sent or deleted
func (c *Contract) Open() bool {
	return c.Status == ContractStatusDraft || c.Status == ContractStatusSent
}

// SuggestedContract is a searcher's counter-offer on the rent of a contract
type SuggestedContract struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	ContractID          uint            `gorm:"not null;index" json:"contract_id"`
	SuggestedRentAmount decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"suggested_rent_amount"`
	PriceSuggestedByID  uint            `gorm:"not null;index" json:"price_suggested_by"`
	CreatedAt           time.Time       `json:"created_at"`
}

func (SuggestedContract) TableName() string {
	return "suggested_contracts"
}

// Message is an in-app notification between two users
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SenderID   uint      `gorm:"not null;index" json:"sender_id"`
	ReceiverID uint      `gorm:"not null;index" json:"receiver_id"`
	ContractID *uint     `gorm:"index" json:"contract_id,omitempty"`
	Subject    string    `gorm:"size:255;not null" json:"subject"`
	Body       string    `gorm:"type:text" json:"body"`
	Read       bool      `gorm:"default:false" json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
