package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// ContractResponse is the top-level contract shape
type ContractResponse struct {
	ID                 uint                 `json:"id"`
	Status             ContractStatus       `json:"status"`
	StartDate          string               `json:"start_date"`
	EndDate            string               `json:"end_date"`
	RentAmount         decimal.Decimal      `json:"rent_amount"`
	DepositAmount      decimal.Decimal      `json:"deposit_amount"`
	TermsAndConditions string               `json:"terms_and_conditions"`
	FileURL            *string              `json:"file"`
	SignatureRequestID *string              `json:"signature_request_id"`
	SignerID           *uint                `json:"signer_id"`
	SignedAt           *time.Time           `json:"signed_at"`
	Room               *RoomContractSummary `json:"room"`
	CreatedAt          time.Time            `json:"created_at"`
}

// RoomContractSummary is the room as it appears nested under a contract.
// It never embeds the contract again.
type RoomContractSummary struct {
	ID            uint            `json:"id"`
	ApartmentID   uint            `json:"apartment_id"`
	Description   string          `json:"description"`
	PricePerMonth decimal.Decimal `json:"price_per_month"`
	RenterID      *uint           `json:"renter_id"`
}

// NewContractResponse builds the response; room may be nil for deleted contracts.
func NewContractResponse(c *Contract, room *Room) ContractResponse {
	resp := ContractResponse{
		ID:                 c.ID,
		Status:             c.Status,
		StartDate:          c.StartDate.Format(DateLayout),
		EndDate:            c.EndDate.Format(DateLayout),
		RentAmount:         c.RentAmount,
		DepositAmount:      c.DepositAmount,
		TermsAndConditions: c.TermsAndConditions,
		FileURL:            c.FileURL,
		SignatureRequestID: c.SignatureRequestID,
		SignerID:           c.SignerID,
		SignedAt:           c.SignedAt,
		CreatedAt:          c.CreatedAt,
	}
	if room != nil {
		resp.Room = &RoomContractSummary{
			ID:            room.ID,
			ApartmentID:   room.ApartmentID,
			Description:   room.Description,
			PricePerMonth: room.PricePerMonth,
			RenterID:      room.RenterID,
		}
	}
	return resp
}

type SuggestionResponse struct {
	ID                  uint            `json:"id"`
	ContractID          uint            `json:"contract_id"`
	SuggestedRentAmount decimal.Decimal `json:"suggested_rent_amount"`
	PriceSuggestedBy    uint            `json:"price_suggested_by"`
	CreatedAt           time.Time       `json:"created_at"`
}

func NewSuggestionResponse(s *SuggestedContract) SuggestionResponse {
	return SuggestionResponse{
		ID:                  s.ID,
		ContractID:          s.ContractID,
		SuggestedRentAmount: s.SuggestedRentAmount,
		PriceSuggestedBy:    s.PriceSuggestedByID,
		CreatedAt:           s.CreatedAt,
	}
}

// SendForSigningResponse is returned after a contract is sent or re-sent
type SendForSigningResponse struct {
	SignatureRequestID string           `json:"signature_request_id"`
	SignURL            string           `json:"sign_url"`
	Contract           ContractResponse `json:"contract"`
}

// SuggestionResolutionResponse carries a warning when the resolution was
// committed but the counterpart could not be notified.
type SuggestionResolutionResponse struct {
	Accepted bool              `json:"accepted"`
	Contract *ContractResponse `json:"contract,omitempty"`
	Warning  string            `json:"warning,omitempty"`
}

type SignatureStatusResponse struct {
	ContractID         uint              `json:"contract_id"`
	ContractStatus     ContractStatus    `json:"contract_status"`
	SignatureRequestID string            `json:"signature_request_id"`
	IsComplete         bool              `json:"is_complete"`
	IsDeclined         bool              `json:"is_declined"`
	Signers            []SignerStatusRow `json:"signers"`
}

type SignerStatusRow struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	StatusCode string `json:"status_code"`
}
